//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package assemble builds the two derivative output documents: a
// text-only PDF rendered from the aggregated document text and an
// image-only PDF collecting every enhanced image.
package assemble

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"trpc.group/trpc-go/trpc-docproc-go/internal/imageio"
	"trpc.group/trpc-go/trpc-docproc-go/log"
)

// Output document names inside the request's scratch directory.
const (
	TextDocumentName  = "text_only_output.pdf"
	ImageDocumentName = "images_only_output.pdf"
)

const (
	defaultResolution   = 100.0 // dpi-equivalent used to size image pages
	fallbackFontSize    = 11.0
	mmPerInch           = 25.4
	fallbackLineHeight  = 5.0
	renderedLineHeight  = 5.5
	renderedHeadingBase = 20.0
)

// Bundle holds the paths of the two assembled documents.
type Bundle struct {
	// TextPDFPath is the rendered text-only document.
	TextPDFPath string
	// ImagePDFPath is the image-collection document. Always present,
	// even when the source had no images.
	ImagePDFPath string
}

// options holds internal configuration for the assembler.
type options struct {
	resolution      float64
	markdownEnabled bool
}

// Option configures the assembler.
type Option func(*options)

// WithResolution sets the dpi-equivalent used to size image pages.
func WithResolution(dpi float64) Option {
	return func(o *options) {
		if dpi > 0 {
			o.resolution = dpi
		}
	}
}

// WithMarkdownRenderer enables or disables the markdown rendering path.
// When disabled the assembler always uses the plain-text fallback. The
// choice is made once at construction so callers can branch on
// RendererAvailable instead of relying on failures at render time.
func WithMarkdownRenderer(enabled bool) Option {
	return func(o *options) {
		o.markdownEnabled = enabled
	}
}

// Assembler composes output documents from extraction results.
type Assembler struct {
	config *options
}

// New creates an assembler with the given options.
func New(opts ...Option) *Assembler {
	cfg := &options{
		resolution:      defaultResolution,
		markdownEnabled: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Assembler{config: cfg}
}

// RendererAvailable reports whether the markdown rendering path is
// active.
func (a *Assembler) RendererAvailable() bool {
	return a.config.markdownEnabled
}

// Build writes both output documents into scratchDir and returns their
// paths. images must be ordered like their analysis records; an empty
// list still produces a valid, content-empty image document.
func (a *Assembler) Build(scratchDir, text string, images []*image.Gray) (*Bundle, error) {
	textPath := filepath.Join(scratchDir, TextDocumentName)
	if err := a.buildTextDocument(textPath, text); err != nil {
		return nil, fmt.Errorf("failed to build text document: %w", err)
	}

	imagePath := filepath.Join(scratchDir, ImageDocumentName)
	if err := a.buildImageDocument(imagePath, images); err != nil {
		return nil, fmt.Errorf("failed to build image document: %w", err)
	}

	return &Bundle{TextPDFPath: textPath, ImagePDFPath: imagePath}, nil
}

// buildTextDocument renders the aggregated text. The markdown path is
// primary; any failure there falls back to the plain single-flow
// renderer, which has no external requirements and always succeeds.
func (a *Assembler) buildTextDocument(path, text string) error {
	if a.config.markdownEnabled {
		if err := renderMarkdown(path, text); err == nil {
			return nil
		} else {
			log.Warnf("assemble: markdown renderer failed, using fallback: %v", err)
		}
	}
	return renderPlain(path, text)
}

// renderPlain writes the raw text into a single-flow document with the
// default fixed-size font.
func renderPlain(path, text string) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", fallbackFontSize)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.MultiCell(0, fallbackLineHeight, tr(text), "", "L", false)
	return doc.OutputFileAndClose(path)
}

// buildImageDocument composes the enhanced images into one multi-page
// PDF, one page per image, each page sized from the image's pixel
// dimensions at the configured resolution.
func (a *Assembler) buildImageDocument(path string, images []*image.Gray) error {
	doc := fpdf.New("P", "mm", "A4", "")

	if len(images) == 0 {
		// A content-empty but openable document; callers never receive
		// "no file" for this slot.
		doc.AddPage()
		return doc.OutputFileAndClose(path)
	}

	for i, img := range images {
		wMM := float64(img.Rect.Dx()) * mmPerInch / a.config.resolution
		hMM := float64(img.Rect.Dy()) * mmPerInch / a.config.resolution

		orientation := "P"
		if wMM > hMM {
			orientation = "L"
		}
		doc.AddPageFormat(orientation, fpdf.SizeType{Wd: wMM, Ht: hMM})

		pngData, err := imageio.EncodePNGBytes(img)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("enhanced_%d", i)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(pngData))
		doc.ImageOptions(name, 0, 0, wMM, hMM, false, opts, 0, "")
	}
	return doc.OutputFileAndClose(path)
}
