//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package analyze composes enhancement, OCR and summarization for a
// single embedded image.
package analyze

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-docproc-go/enhance"
	"trpc.group/trpc-go/trpc-docproc-go/internal/imageio"
	"trpc.group/trpc-go/trpc-docproc-go/ocr"
	"trpc.group/trpc-go/trpc-docproc-go/summarize"
)

// Source locates an image inside its source document. Both fields are
// zero-based; reports render them one-based.
type Source struct {
	// Page is the page or slide the image was found on.
	Page int
	// Index is the image's position within its extraction unit.
	Index int
}

// Record is the per-image analysis result. Field tags match the wire
// report returned to the caller.
type Record struct {
	// SourcePage is the one-based page or slide number.
	SourcePage int `json:"source_page"`
	// Filename names the enhanced image written to the scratch
	// directory, unique within one request.
	Filename string `json:"filename"`
	// OCRText is the recognized text, or a degraded-result marker.
	OCRText string `json:"ocr_text"`
	// Summary is the generated summary, or a degraded-result marker.
	Summary string `json:"summary"`

	// SummaryStatus tags the summary outcome so callers do not have to
	// string-match the marker.
	SummaryStatus summarize.Status `json:"-"`
	// OCRFailed reports whether OCRText carries an error marker instead
	// of recognized text.
	OCRFailed bool `json:"-"`
}

// Unit runs the full per-image pipeline: enhance, recognize, summarize,
// persist. A decode or enhancement failure is fatal for the one image and
// surfaces as an error; OCR and summarization failures degrade into
// marker fields so sibling images keep processing.
type Unit struct {
	pipeline   *enhance.Pipeline
	extractor  ocr.Extractor
	summarizer summarize.Summarizer
}

// Option configures the analysis unit.
type Option func(*Unit)

// WithEnhancementPipeline overrides the default enhancement pipeline.
func WithEnhancementPipeline(p *enhance.Pipeline) Option {
	return func(u *Unit) {
		if p != nil {
			u.pipeline = p
		}
	}
}

// New creates an analysis unit. extractor must not be nil; summarizer may
// be nil, in which case every summary is reported as skipped.
func New(extractor ocr.Extractor, summarizer summarize.Summarizer, opts ...Option) *Unit {
	u := &Unit{
		pipeline:   enhance.New(),
		extractor:  extractor,
		summarizer: summarizer,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Analyze processes one image: decodes it, runs the enhancement chain,
// recognizes text, requests a summary and writes the enhanced PNG into
// scratchDir. It returns the analysis record and the enhanced image for
// later aggregation into the image-only output document.
func (u *Unit) Analyze(ctx context.Context, imageData []byte, src Source, scratchDir string) (Record, *image.Gray, error) {
	ctx, span := otel.Tracer("trpc.group/trpc-go/trpc-docproc-go/analyze").Start(ctx, "analyze_image")
	defer span.End()
	span.SetAttributes(
		attribute.Int("image.source_page", src.Page+1),
		attribute.Int("image.index", src.Index+1),
	)

	decoded, _, err := imageio.Decode(imageData)
	if err != nil {
		return Record{}, nil, err
	}

	enhanced := u.pipeline.Apply(decoded)

	pngData, err := imageio.EncodePNGBytes(enhanced)
	if err != nil {
		return Record{}, nil, err
	}

	record := Record{
		SourcePage: src.Page + 1,
		Filename:   fmt.Sprintf("enhanced_page_%d_img_%d.png", src.Page+1, src.Index+1),
	}

	text, err := u.extractor.ExtractText(ctx, pngData)
	if err != nil {
		record.OCRText = fmt.Sprintf("[ERROR] OCR failed: %v", err)
		record.OCRFailed = true
	} else {
		record.OCRText = text
	}

	summary := summarize.Skipped()
	if u.summarizer != nil {
		summary = u.summarizer.Summarize(ctx, pngData, record.OCRText)
	}
	record.Summary = summary.String()
	record.SummaryStatus = summary.Status

	path := filepath.Join(scratchDir, record.Filename)
	if err := os.WriteFile(path, pngData, 0o644); err != nil {
		return Record{}, nil, fmt.Errorf("failed to persist enhanced image: %w", err)
	}

	return record, enhanced, nil
}
