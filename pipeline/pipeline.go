//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package pipeline orchestrates one document processing request from
// dispatch to assembled outputs.
//
// Every request runs sequentially through the states Init, Dispatched,
// Aggregating, Assembling and Done (or Failed), with all per-image work
// on one control flow in discovery order, so outputs are deterministic
// for a given input. Each request owns a uniquely named scratch
// directory; concurrent requests never share filesystem state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-docproc-go/analyze"
	"trpc.group/trpc-go/trpc-docproc-go/assemble"
	"trpc.group/trpc-go/trpc-docproc-go/enhance"
	"trpc.group/trpc-go/trpc-docproc-go/extract"
	"trpc.group/trpc-go/trpc-docproc-go/log"
	"trpc.group/trpc-go/trpc-docproc-go/ocr"
	"trpc.group/trpc-go/trpc-docproc-go/summarize"

	// Register the format extractors.
	_ "trpc.group/trpc-go/trpc-docproc-go/extract/docx"
	_ "trpc.group/trpc-go/trpc-docproc-go/extract/pdf"
	_ "trpc.group/trpc-go/trpc-docproc-go/extract/pptx"
)

// State names one phase of request processing.
type State int

// Processing states.
const (
	StateInit State = iota
	StateDispatched
	StateAggregating
	StateAssembling
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateInit:        "init",
	StateDispatched:  "dispatched",
	StateAggregating: "aggregating",
	StateAssembling:  "assembling",
	StateDone:        "done",
	StateFailed:      "failed",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// UnsupportedTypeError reports a file the dispatcher cannot route. It is
// a client error and passes through the orchestrator unchanged.
type UnsupportedTypeError struct {
	Filename string
}

// Error renders the client-facing detail message.
func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("Unsupported file type: %s. Please upload a PDF, DOCX, PPTX, or image file.", e.Filename)
}

// Result is the structured outcome of one processed document.
type Result struct {
	Status           string           `json:"status"`
	OriginalFilename string           `json:"original_filename"`
	ImagesFound      int              `json:"images_found"`
	ImageAnalysis    []analyze.Record `json:"image_analysis"`
	TextPDFPath      string           `json:"text_only_pdf_path"`
	ImagePDFPath     string           `json:"images_only_pdf_path"`
}

const (
	scratchPrefix     = "docproc-"
	defaultScratchTTL = time.Hour
)

// options holds internal configuration for the processor.
type options struct {
	scratchRoot   string
	scratchTTL    time.Duration
	sweepInterval time.Duration
	assembler     *assemble.Assembler
	enhancer      *enhance.Pipeline
	maxSummaries  int
}

// Option configures the processor.
type Option func(*options)

// WithScratchRoot sets the directory under which per-request scratch
// directories are created. Defaults to the system temp directory.
func WithScratchRoot(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.scratchRoot = dir
		}
	}
}

// WithScratchTTL sets the age after which leftover scratch directories
// are reclaimed by the sweeper.
func WithScratchTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.scratchTTL = ttl
		}
	}
}

// WithSweepInterval sets how often the background sweeper reclaims
// stale scratch directories. Defaults to half the scratch TTL.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithAssembler overrides the default output assembler.
func WithAssembler(a *assemble.Assembler) Option {
	return func(o *options) {
		if a != nil {
			o.assembler = a
		}
	}
}

// WithEnhancementPipeline overrides the default enhancement pipeline
// used by per-image analysis.
func WithEnhancementPipeline(p *enhance.Pipeline) Option {
	return func(o *options) {
		if p != nil {
			o.enhancer = p
		}
	}
}

// WithMaxSummaries caps external summarization calls per request.
// Images beyond the cap receive skipped summaries. Zero or negative
// means no cap.
func WithMaxSummaries(n int) Option {
	return func(o *options) {
		o.maxSummaries = n
	}
}

// Processor runs document requests through the processing pipeline.
type Processor struct {
	config     *options
	extractor  ocr.Extractor
	summarizer summarize.Summarizer
	tracer     trace.Tracer

	stopSweep chan struct{}
	closeOnce sync.Once
}

// New creates a processor. extractor must not be nil; summarizer may be
// nil for a deployment without the summarization capability. The scratch
// root is created if missing; stale request directories are swept
// immediately and then periodically until Close.
func New(extractor ocr.Extractor, summarizer summarize.Summarizer, opts ...Option) (*Processor, error) {
	if extractor == nil {
		return nil, errors.New("pipeline: OCR extractor is required")
	}

	cfg := &options{
		scratchRoot: os.TempDir(),
		scratchTTL:  defaultScratchTTL,
		assembler:   assemble.New(),
		enhancer:    enhance.New(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.sweepInterval <= 0 {
		cfg.sweepInterval = cfg.scratchTTL / 2
	}

	if err := os.MkdirAll(cfg.scratchRoot, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: failed to create scratch root: %w", err)
	}
	sweepScratch(cfg.scratchRoot, cfg.scratchTTL)

	p := &Processor{
		config:     cfg,
		extractor:  extractor,
		summarizer: summarizer,
		tracer:     otel.Tracer("trpc.group/trpc-go/trpc-docproc-go/pipeline"),
		stopSweep:  make(chan struct{}),
	}
	go p.sweepLoop()
	return p, nil
}

// Close stops the background scratch sweeper. Safe to call more than
// once.
func (p *Processor) Close() error {
	p.closeOnce.Do(func() { close(p.stopSweep) })
	return nil
}

// sweepLoop reclaims stale scratch directories at a fixed interval.
// Successful requests hand their directories off by path, so without the
// loop a long-lived process would accumulate them until restart.
func (p *Processor) sweepLoop() {
	ticker := time.NewTicker(p.config.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweepScratch(p.config.scratchRoot, p.config.scratchTTL)
		case <-p.stopSweep:
			return
		}
	}
}

// Process runs one uploaded document through dispatch, aggregation and
// assembly. On success the scratch directory holding the outputs is
// retained so the caller can serve the returned paths; on any failure it
// is removed.
func (p *Processor) Process(ctx context.Context, filename, contentType string, data []byte) (result *Result, err error) {
	ctx, span := p.tracer.Start(ctx, "process_document",
		trace.WithAttributes(attribute.String("document.filename", filename)))
	defer span.End()

	state := StateInit
	scratchDir, err := p.newScratchDir()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			state = StateFailed
			span.RecordError(err)
			if rmErr := os.RemoveAll(scratchDir); rmErr != nil {
				log.Errorf("pipeline: failed to remove scratch dir %s: %v", scratchDir, rmErr)
			}
		}
		log.Infof("pipeline: %s finished in state %s", filename, state)
	}()

	state = StateDispatched
	unit := analyze.New(p.extractor, p.requestSummarizer(), analyze.WithEnhancementPipeline(p.config.enhancer))

	var extraction *extract.Result
	ext := strings.ToLower(filepath.Ext(filename))
	formatExtractor, registered := extract.GetExtractor(ext)

	state = StateAggregating
	switch {
	case registered:
		extraction, err = formatExtractor.Extract(ctx, data, unit, scratchDir)
		if err != nil {
			return nil, err
		}
	case strings.HasPrefix(contentType, "image/"):
		extraction, err = analyzeBareImage(ctx, data, unit, scratchDir)
		if err != nil {
			return nil, err
		}
	default:
		err = &UnsupportedTypeError{Filename: filename}
		return nil, err
	}

	state = StateAssembling
	bundle, err := p.config.assembler.Build(scratchDir, extraction.Text, extraction.Images)
	if err != nil {
		return nil, err
	}

	state = StateDone
	records := extraction.Records
	if records == nil {
		records = []analyze.Record{}
	}
	span.SetAttributes(attribute.Int("document.images_found", len(records)))
	return &Result{
		Status:           "success",
		OriginalFilename: filename,
		ImagesFound:      len(records),
		ImageAnalysis:    records,
		TextPDFPath:      bundle.TextPDFPath,
		ImagePDFPath:     bundle.ImagePDFPath,
	}, nil
}

// analyzeBareImage synthesizes a trivial extraction result for a bare
// uploaded image: one record, no aggregated text. A decode failure here
// fails the request, since there is nothing else to process.
func analyzeBareImage(ctx context.Context, data []byte, unit *analyze.Unit, scratchDir string) (*extract.Result, error) {
	record, enhanced, err := unit.Analyze(ctx, data, analyze.Source{}, scratchDir)
	if err != nil {
		return nil, err
	}
	return &extract.Result{
		Records: []analyze.Record{record},
		Images:  []*image.Gray{enhanced},
	}, nil
}

// newScratchDir allocates a uniquely named scratch directory for one
// request.
func (p *Processor) newScratchDir() (string, error) {
	dir := filepath.Join(p.config.scratchRoot, scratchPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("pipeline: failed to create scratch dir: %w", err)
	}
	return dir, nil
}

// requestSummarizer wraps the shared summarizer with the per-request
// summary cap.
func (p *Processor) requestSummarizer() summarize.Summarizer {
	if p.summarizer == nil || p.config.maxSummaries <= 0 {
		return p.summarizer
	}
	return &cappedSummarizer{inner: p.summarizer, remaining: p.config.maxSummaries}
}

// sweepScratch removes leftover request directories older than ttl.
// Outputs are handed off by path on success, so anything past the TTL is
// an abandoned result.
func sweepScratch(root string, ttl time.Duration) {
	entries, err := os.ReadDir(root)
	if err != nil {
		log.Warnf("pipeline: scratch sweep skipped: %v", err)
		return
	}
	cutoff := time.Now().Add(-ttl)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), scratchPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warnf("pipeline: failed to sweep %s: %v", path, err)
		} else {
			log.Infof("pipeline: swept stale scratch dir %s", path)
		}
	}
}
