//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package pdf provides the paginated-document extractor.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	pdfcpuAPI "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"trpc.group/trpc-go/trpc-docproc-go/analyze"
	"trpc.group/trpc-go/trpc-docproc-go/extract"
	"trpc.group/trpc-go/trpc-docproc-go/log"
)

var supportedExtensions = []string{".pdf"}

// init registers the PDF extractor with the global registry.
func init() {
	extract.RegisterExtractor(supportedExtensions, New)
}

// readAndOptimize builds the pdfcpu context for image extraction.
// Swappable in tests to exercise the degraded text-only path.
var readAndOptimize = pdfcpuAPI.ReadValidateAndOptimize

// Extractor walks a PDF page by page: page text first, then that page's
// embedded raster images in object order.
type Extractor struct{}

// New creates a new PDF extractor.
func New() extract.Extractor {
	return &Extractor{}
}

// Extract parses the PDF and returns the aggregated text plus one
// analysis record per decodable embedded image.
func (e *Extractor) Extract(ctx context.Context, data []byte, unit *analyze.Unit, scratchDir string) (*extract.Result, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	// One pdfcpu context serves image extraction for every page.
	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.EXTRACTIMAGES
	pdfcpuCtx, err := readAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		// Text extraction can still proceed, but the caller gets a
		// document with zero images; loud enough to tell apart from a
		// genuinely image-free source.
		log.Errorf("pdf: image extraction unavailable, continuing text-only: %v", err)
		pdfcpuCtx = nil
	}

	result := &extract.Result{}
	var allText strings.Builder

	totalPages := pdfReader.NumPage()
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		allText.WriteString(pageText(pdfReader, pageIndex))
		allText.WriteString("\n\n")

		if pdfcpuCtx == nil {
			continue
		}
		for imgIndex, imgData := range pageImages(pdfcpuCtx, pageIndex) {
			record, enhanced, err := unit.Analyze(ctx, imgData, analyze.Source{Page: pageIndex - 1, Index: imgIndex}, scratchDir)
			if err != nil {
				// One bad image must not abort its siblings.
				log.Warnf("pdf: skipping image %d on page %d: %v", imgIndex+1, pageIndex, err)
				continue
			}
			result.Records = append(result.Records, record)
			result.Images = append(result.Images, enhanced)
		}
	}

	result.Text = allText.String()
	return result, nil
}

// pageText extracts the text of a single page; unparsable pages yield an
// empty string rather than failing the document.
func pageText(pdfReader *pdf.Reader, pageIndex int) string {
	page := pdfReader.Page(pageIndex)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// pageImages returns the raw bytes of the page's embedded images in
// ascending object order, which is the order the page's resource list
// references them.
func pageImages(pdfcpuCtx *model.Context, pageIndex int) [][]byte {
	images, err := pdfcpu.ExtractPageImages(pdfcpuCtx, pageIndex, false)
	if err != nil || len(images) == 0 {
		return nil
	}

	objNrs := make([]int, 0, len(images))
	for objNr := range images {
		objNrs = append(objNrs, objNr)
	}
	sort.Ints(objNrs)

	var out [][]byte
	for _, objNr := range objNrs {
		img := images[objNr]
		if img.Reader == nil {
			continue
		}
		data, err := io.ReadAll(img.Reader)
		if err != nil || len(data) == 0 {
			continue
		}
		out = append(out, data)
	}
	return out
}

// Name returns the name of this extractor.
func (e *Extractor) Name() string {
	return "PDFExtractor"
}

// SupportedExtensions returns the file extensions this extractor supports.
func (e *Extractor) SupportedExtensions() []string {
	return supportedExtensions
}
