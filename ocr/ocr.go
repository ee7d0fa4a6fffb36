//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package ocr provides OCR (Optical Character Recognition) interfaces.
package ocr

import (
	"context"
	"io"
)

// Extractor defines the core interface for text extraction from images.
type Extractor interface {
	// ExtractText extracts text from image data.
	// Returns the recognized text and any error encountered.
	ExtractText(ctx context.Context, imageData []byte) (string, error)

	// ExtractTextFromReader extracts text from an image reader.
	ExtractTextFromReader(ctx context.Context, reader io.Reader) (string, error)

	// Close releases any resources held by the OCR engine.
	Close() error
}
