//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package tesseract provides a Tesseract OCR engine implementation.
package tesseract

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

const (
	defaultLanguage = "eng"
	// Page segmentation mode 6 treats the image as a single uniform block
	// of text, which matches the enhanced per-image rasters fed in here.
	defaultPageSegMode = 6
)

// options holds internal configuration for the Tesseract extractor.
type options struct {
	language    string // e.g. "eng", "chi_sim", "eng+chi_sim"
	pageSegMode int    // Tesseract page segmentation mode (0-13)
}

// Option configures the Tesseract extractor.
type Option func(*options)

// WithLanguage sets the OCR language(s).
// Use "+" to combine multiple languages, e.g. "eng+deu".
func WithLanguage(lang string) Option {
	return func(o *options) {
		if lang != "" {
			o.language = lang
		}
	}
}

// WithPageSegMode sets the Tesseract page segmentation mode (0-13).
// Invalid modes are ignored and the default (6, uniform block) is kept.
func WithPageSegMode(mode int) Option {
	return func(o *options) {
		if mode < 0 || mode > 13 {
			return
		}
		o.pageSegMode = mode
	}
}

// Extractor implements OCR using Tesseract with a client pool so that
// independent requests can recognize text concurrently.
//
//  1. Install Tesseract: apt-get install tesseract-ocr libtesseract-dev
//  2. Add dependency: go get github.com/otiai10/gosseract/v2
type Extractor struct {
	pool   *sync.Pool
	config *options
}

// New creates a new Tesseract extractor with a pooled client per
// concurrent caller.
func New(opts ...Option) (*Extractor, error) {
	cfg := &options{
		language:    defaultLanguage,
		pageSegMode: defaultPageSegMode,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// Validate configuration by configuring a throwaway client once.
	probe := gosseract.NewClient()
	if err := probe.SetLanguage(cfg.language); err != nil {
		probe.Close()
		return nil, fmt.Errorf("failed to set language %q: %w", cfg.language, err)
	}
	if err := probe.SetPageSegMode(gosseract.PageSegMode(cfg.pageSegMode)); err != nil {
		probe.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode %d: %w", cfg.pageSegMode, err)
	}
	probe.Close()

	pool := &sync.Pool{
		New: func() any {
			client := gosseract.NewClient()
			// Settings validated above.
			_ = client.SetLanguage(cfg.language)
			_ = client.SetPageSegMode(gosseract.PageSegMode(cfg.pageSegMode))
			return client
		},
	}

	return &Extractor{pool: pool, config: cfg}, nil
}

// ExtractText extracts text from image data. The operation respects the
// context's deadline and cancellation.
func (e *Extractor) ExtractText(ctx context.Context, imageData []byte) (string, error) {
	if e.pool == nil {
		return "", fmt.Errorf("tesseract client pool not initialized")
	}
	if len(imageData) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	client := e.pool.Get().(*gosseract.Client)
	defer e.pool.Put(client)

	type result struct {
		text string
		err  error
	}
	// Buffered so an abandoned recognition cannot leak the goroutine.
	resultCh := make(chan result, 1)

	go func() {
		text, err := recognize(client, imageData)
		resultCh <- result{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		return res.text, res.err
	}
}

// recognize performs the actual OCR call on a pooled client.
func recognize(client *gosseract.Client, imageData []byte) (string, error) {
	if err := client.SetImageFromBytes(imageData); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ExtractTextFromReader extracts text from an image reader.
func (e *Extractor) ExtractTextFromReader(ctx context.Context, reader io.Reader) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read image data: %w", err)
	}
	return e.ExtractText(ctx, data)
}

// Close releases the extractor. Pooled clients are reclaimed by the
// runtime; nothing needs explicit teardown beyond dropping the pool.
func (e *Extractor) Close() error {
	e.pool = nil
	return nil
}
