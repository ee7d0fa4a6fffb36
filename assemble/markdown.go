//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

package assemble

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// renderMarkdown parses the aggregated text as markdown and typesets the
// block structure into a PDF: sized headings, body paragraphs, monospace
// code blocks and bulleted lists.
func renderMarkdown(path, text string) error {
	source := []byte(text)
	root := goldmark.New().Parser().Parse(gtext.NewReader(source))

	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if err := renderBlock(doc, tr, n, source); err != nil {
			return err
		}
	}

	return doc.OutputFileAndClose(path)
}

// renderBlock typesets one top-level block node.
func renderBlock(doc *fpdf.Fpdf, tr func(string) string, n ast.Node, source []byte) error {
	switch node := n.(type) {
	case *ast.Heading:
		size := renderedHeadingBase - 2*float64(node.Level-1)
		if size < fallbackFontSize {
			size = fallbackFontSize
		}
		doc.SetFont("Helvetica", "B", size)
		doc.MultiCell(0, renderedLineHeight+2, tr(inlineText(node, source)), "", "L", false)
		doc.Ln(2)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		doc.SetFont("Courier", "", fallbackFontSize-1)
		doc.MultiCell(0, renderedLineHeight, tr(blockLines(n, source)), "", "L", false)
		doc.Ln(2)
	case *ast.List:
		doc.SetFont("Helvetica", "", fallbackFontSize)
		index := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "- "
			if node.IsOrdered() {
				marker = fmt.Sprintf("%d. ", index)
				index++
			}
			doc.MultiCell(0, renderedLineHeight, tr(marker+inlineText(item, source)), "", "L", false)
		}
		doc.Ln(2)
	case *ast.Blockquote:
		doc.SetFont("Helvetica", "I", fallbackFontSize)
		doc.MultiCell(0, renderedLineHeight, tr(inlineText(node, source)), "", "L", false)
		doc.Ln(2)
	case *ast.ThematicBreak:
		doc.Ln(4)
	default:
		doc.SetFont("Helvetica", "", fallbackFontSize)
		doc.MultiCell(0, renderedLineHeight, tr(inlineText(n, source)), "", "L", false)
		doc.Ln(2)
	}
	if doc.Err() {
		return fmt.Errorf("markdown rendering failed: %v", doc.Error())
	}
	return nil
}

// inlineText collects the plain text beneath a node.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// blockLines reassembles the raw lines of a code block.
func blockLines(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}
