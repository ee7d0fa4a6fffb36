//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package docx provides the flow-document extractor.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/gonfva/docxlib"

	"trpc.group/trpc-go/trpc-docproc-go/analyze"
	"trpc.group/trpc-go/trpc-docproc-go/extract"
	"trpc.group/trpc-go/trpc-docproc-go/log"
)

var supportedExtensions = []string{".docx"}

// init registers the DOCX extractor with the global registry.
func init() {
	extract.RegisterExtractor(supportedExtensions, New)
}

// Extractor walks a DOCX flow document: paragraph texts in document
// order, then embedded images from the document part's relationship list
// in relationship order. A DOCX has no pages at extraction time, so every
// image reports source page 1.
type Extractor struct{}

// New creates a new DOCX extractor.
func New() extract.Extractor {
	return &Extractor{}
}

// Extract parses the DOCX and returns the aggregated paragraph text plus
// one analysis record per decodable embedded image.
func (e *Extractor) Extract(ctx context.Context, data []byte, unit *analyze.Unit, scratchDir string) (*extract.Result, error) {
	doc, err := docxlib.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open DOCX: %w", err)
	}

	var paragraphs []string
	for _, para := range doc.Paragraphs() {
		var sb strings.Builder
		for _, child := range para.Children() {
			if child.Run != nil && child.Run.Text != nil {
				sb.WriteString(child.Run.Text.Text)
			}
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	result := &extract.Result{Text: strings.Join(paragraphs, "\n")}

	blobs, err := imageBlobs(data)
	if err != nil {
		return nil, err
	}
	for imgIndex, blob := range blobs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		record, enhanced, err := unit.Analyze(ctx, blob, analyze.Source{Page: 0, Index: imgIndex}, scratchDir)
		if err != nil {
			log.Warnf("docx: skipping image %d: %v", imgIndex+1, err)
			continue
		}
		result.Records = append(result.Records, record)
		result.Images = append(result.Images, enhanced)
	}

	return result, nil
}

// relationships mirrors the OOXML relationship part.
type relationships struct {
	XMLName       xml.Name       `xml:"Relationships"`
	Relationships []relationship `xml:"Relationship"`
}

type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// imageBlobs returns the binary blobs of every image relationship of the
// main document part, ordered by relationship ID. docxlib exposes no
// media parts, but a DOCX is a plain zip container, so the relationship
// list is read directly.
func imageBlobs(data []byte) ([][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open DOCX container: %w", err)
	}

	rels, err := readRelationships(zr, "word/_rels/document.xml.rels")
	if err != nil {
		return nil, err
	}

	var imageRels []relationship
	for _, rel := range rels.Relationships {
		if strings.Contains(rel.Type, "/image") {
			imageRels = append(imageRels, rel)
		}
	}
	sort.Slice(imageRels, func(i, j int) bool {
		return relOrder(imageRels[i].ID) < relOrder(imageRels[j].ID)
	})

	var blobs [][]byte
	for _, rel := range imageRels {
		blob, err := readPart(zr, resolveTarget("word", rel.Target))
		if err != nil {
			log.Warnf("docx: unreadable image part %q: %v", rel.Target, err)
			continue
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

// readRelationships parses a relationship part from the container.
func readRelationships(zr *zip.Reader, name string) (*relationships, error) {
	part, err := readPart(zr, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read relationships: %w", err)
	}
	var rels relationships
	if err := xml.Unmarshal(part, &rels); err != nil {
		return nil, fmt.Errorf("failed to parse relationships: %w", err)
	}
	return &rels, nil
}

// readPart reads one named file from the zip container.
func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("part %q not found", name)
}

// resolveTarget resolves a relationship target against its source part
// directory, e.g. ("word", "media/image1.png") -> "word/media/image1.png".
func resolveTarget(baseDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(baseDir, target))
}

// relOrder extracts the numeric suffix of a relationship ID ("rId12" ->
// 12) so relationships sort in declaration order.
func relOrder(id string) int {
	digits := strings.TrimLeftFunc(id, func(r rune) bool {
		return r < '0' || r > '9'
	})
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// Name returns the name of this extractor.
func (e *Extractor) Name() string {
	return "DOCXExtractor"
}

// SupportedExtensions returns the file extensions this extractor supports.
func (e *Extractor) SupportedExtensions() []string {
	return supportedExtensions
}
