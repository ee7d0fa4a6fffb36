//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package pptx provides the slide-deck extractor.
//
// No Go library in use here reads PPTX, but the format is the same OOXML
// zip container as DOCX: slides live under ppt/slides and reference their
// media through per-slide relationship parts. The walker classifies
// shapes into a closed set by element name: <p:sp> carries text, <p:pic>
// carries an image, everything else is ignored.
package pptx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"trpc.group/trpc-go/trpc-docproc-go/analyze"
	"trpc.group/trpc-go/trpc-docproc-go/extract"
	"trpc.group/trpc-go/trpc-docproc-go/log"
)

var supportedExtensions = []string{".pptx"}

// init registers the PPTX extractor with the global registry.
func init() {
	extract.RegisterExtractor(supportedExtensions, New)
}

// slidePattern matches slide part names and captures the slide number.
var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Extractor walks a slide deck in slide order. Each slide contributes a
// marker line plus its text shapes; image shapes are analyzed with a
// running image index that spans the whole deck.
type Extractor struct{}

// New creates a new PPTX extractor.
func New() extract.Extractor {
	return &Extractor{}
}

// Extract parses the PPTX and returns the aggregated slide text plus one
// analysis record per decodable embedded image.
func (e *Extractor) Extract(ctx context.Context, data []byte, unit *analyze.Unit, scratchDir string) (*extract.Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PPTX container: %w", err)
	}

	slides, err := slideParts(zr)
	if err != nil {
		return nil, err
	}

	result := &extract.Result{}
	var allText strings.Builder
	imgIndex := 0 // runs across the whole deck, not per slide

	for _, slide := range slides {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		allText.WriteString(fmt.Sprintf("\n--- Slide %d ---\n", slide.number))

		content, err := parseSlide(slide.data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse slide %d: %w", slide.number, err)
		}

		for _, shape := range content.shapes {
			switch shape.kind {
			case shapeText:
				allText.WriteString(shape.text)
				allText.WriteString("\n")
			case shapeImage:
				target, ok := slide.rels[shape.relID]
				if !ok {
					log.Warnf("pptx: slide %d references unknown image relationship %q", slide.number, shape.relID)
					continue
				}
				blob, err := readPart(zr, target)
				if err != nil {
					log.Warnf("pptx: unreadable image part %q: %v", target, err)
					continue
				}
				record, enhanced, err := unit.Analyze(ctx, blob, analyze.Source{Page: slide.number - 1, Index: imgIndex}, scratchDir)
				imgIndex++
				if err != nil {
					log.Warnf("pptx: skipping image %d on slide %d: %v", imgIndex, slide.number, err)
					continue
				}
				result.Records = append(result.Records, record)
				result.Images = append(result.Images, enhanced)
			}
		}
	}

	result.Text = allText.String()
	return result, nil
}

// slidePart is one slide with its resolved relationship targets.
type slidePart struct {
	number int
	data   []byte
	rels   map[string]string // rId -> container path
}

// slideParts loads every slide and its relationships, ordered by slide
// number.
func slideParts(zr *zip.Reader) ([]slidePart, error) {
	var slides []slidePart
	for _, f := range zr.File {
		m := slidePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		number, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		data, err := readPart(zr, f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to read slide %d: %w", number, err)
		}
		rels, err := slideRelationships(zr, number)
		if err != nil {
			return nil, err
		}
		slides = append(slides, slidePart{number: number, data: data, rels: rels})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })
	return slides, nil
}

// slideRelationships maps a slide's relationship IDs to container paths.
// A slide without a relationship part simply has no media.
func slideRelationships(zr *zip.Reader, number int) (map[string]string, error) {
	name := fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", number)
	part, err := readPart(zr, name)
	if err != nil {
		return map[string]string{}, nil
	}

	var rels struct {
		Relationships []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(part, &rels); err != nil {
		return nil, fmt.Errorf("failed to parse slide %d relationships: %w", number, err)
	}

	out := make(map[string]string, len(rels.Relationships))
	for _, rel := range rels.Relationships {
		out[rel.ID] = path.Clean(path.Join("ppt/slides", rel.Target))
	}
	return out, nil
}

// shapeKind is the closed set of shape capabilities the walker cares
// about.
type shapeKind int

const (
	shapeText shapeKind = iota
	shapeImage
)

type shape struct {
	kind  shapeKind
	text  string // shapeText: paragraphs joined with newlines
	relID string // shapeImage: the r:embed relationship ID
}

type slideContent struct {
	shapes []shape
}

// parseSlide walks a slide's XML and returns its shapes in document
// order.
func parseSlide(data []byte) (*slideContent, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	content := &slideContent{}
	var (
		spDepth     int
		picDepth    int
		inRun       bool
		paraBuilder strings.Builder
		spParas     []string
		spHasText   bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				spDepth++
				if spDepth == 1 {
					spParas = nil
					spHasText = false
				}
			case "txBody":
				if spDepth > 0 {
					spHasText = true
				}
			case "p":
				if spDepth > 0 {
					paraBuilder.Reset()
				}
			case "t":
				if spDepth > 0 {
					inRun = true
				}
			case "pic":
				picDepth++
			case "blip":
				// Blips also appear in shape fills, backgrounds and
				// picture bullets; only ones inside a picture shape are
				// slide images.
				if picDepth == 0 {
					break
				}
				for _, attr := range t.Attr {
					if attr.Name.Local == "embed" && attr.Value != "" {
						content.shapes = append(content.shapes, shape{kind: shapeImage, relID: attr.Value})
						break
					}
				}
			}
		case xml.CharData:
			if inRun {
				paraBuilder.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				if spDepth > 0 {
					spParas = append(spParas, paraBuilder.String())
					paraBuilder.Reset()
				}
			case "pic":
				picDepth--
			case "sp":
				spDepth--
				if spDepth == 0 && spHasText {
					content.shapes = append(content.shapes, shape{kind: shapeText, text: strings.Join(spParas, "\n")})
				}
			}
		}
	}
	return content, nil
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

// Name returns the name of this extractor.
func (e *Extractor) Name() string {
	return "PPTXExtractor"
}

// SupportedExtensions returns the file extensions this extractor supports.
func (e *Extractor) SupportedExtensions() []string {
	return supportedExtensions
}
