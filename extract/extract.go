//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package extract defines the interface for format-specific document
// extractors.
//
// An extractor walks one container format (paginated PDF, flow DOCX,
// slide-deck PPTX), aggregates its text and hands every embedded image to
// the analysis unit in discovery order. Concrete extractors register
// themselves with the extension registry in their init functions.
package extract

import (
	"context"
	"image"

	"trpc.group/trpc-go/trpc-docproc-go/analyze"
)

// Result is the outcome of extracting one document.
type Result struct {
	// Text is the aggregated document text: page texts joined with blank
	// lines, paragraph texts joined with newlines, or slide texts behind
	// slide markers, depending on the format.
	Text string
	// Records holds one analysis record per decodable embedded image, in
	// discovery order.
	Records []analyze.Record
	// Images holds the enhanced images, parallel to Records.
	Images []*image.Gray
}

// Extractor walks one document format.
type Extractor interface {
	// Extract parses the raw document bytes, feeding every discovered
	// image through the analysis unit. A single undecodable image is
	// skipped; a malformed container fails the extraction.
	Extract(ctx context.Context, data []byte, unit *analyze.Unit, scratchDir string) (*Result, error)

	// Name returns the extractor's name.
	Name() string

	// SupportedExtensions returns the file extensions this extractor
	// supports, dot-prefixed and lowercase.
	SupportedExtensions() []string
}
