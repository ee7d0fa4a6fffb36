//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"

	"trpc.group/trpc-go/trpc-docproc-go/summarize"
)

type fakeOCR struct {
	text string
}

func (f *fakeOCR) ExtractText(_ context.Context, _ []byte) (string, error) {
	return f.text, nil
}

func (f *fakeOCR) ExtractTextFromReader(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return f.ExtractText(ctx, data)
}

func (f *fakeOCR) Close() error { return nil }

type countingSummarizer struct {
	calls int
}

func (c *countingSummarizer) Summarize(_ context.Context, _ []byte, _ string) summarize.Summary {
	c.calls++
	return summarize.OK("a summary")
}

func (c *countingSummarizer) Enabled() bool { return true }

func newTestPDF(t *testing.T, text string, imageCount int) []byte {
	t.Helper()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	doc.AddPage()
	doc.Cell(40, 10, text)
	for i := 0; i < imageCount; i++ {
		img := image.NewGray(image.Rect(0, 0, 24, 16))
		for y := 0; y < 16; y++ {
			for x := 0; x < 24; x++ {
				img.SetGray(x, y, color.Gray{Y: uint8(10*x + i)})
			}
		}
		var jpegBuf bytes.Buffer
		if err := jpeg.Encode(&jpegBuf, img, nil); err != nil {
			t.Fatalf("failed to encode test JPEG: %v", err)
		}
		name := string(rune('a' + i))
		opts := fpdf.ImageOptions{ImageType: "JPG"}
		doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(jpegBuf.Bytes()))
		doc.ImageOptions(name, 10, float64(40+20*i), 24, 16, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("failed to generate test PDF: %v", err)
	}
	return buf.Bytes()
}

func newTestPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 20, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 20; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(12 * x)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func newProcessor(t *testing.T, summarizer summarize.Summarizer, opts ...Option) *Processor {
	t.Helper()

	opts = append([]Option{WithScratchRoot(t.TempDir())}, opts...)
	p, err := New(&fakeOCR{text: "recognized"}, summarizer, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProcess_TextOnlyPDF(t *testing.T) {
	p := newProcessor(t, nil)

	result, err := p.Process(context.Background(), "report.pdf", "application/pdf", newTestPDF(t, "Quarterly Report", 0))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Status != "success" {
		t.Errorf("Status = %q, want success", result.Status)
	}
	if result.OriginalFilename != "report.pdf" {
		t.Errorf("OriginalFilename = %q", result.OriginalFilename)
	}
	if result.ImagesFound != 0 {
		t.Errorf("ImagesFound = %d, want 0", result.ImagesFound)
	}
	// Zero images still yields an empty, non-nil analysis list.
	if result.ImageAnalysis == nil {
		t.Error("ImageAnalysis is nil")
	}
	for _, path := range []string{result.TextPDFPath, result.ImagePDFPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("output missing: %v", err)
		}
	}
}

func TestProcess_BareImage(t *testing.T) {
	p := newProcessor(t, nil)

	result, err := p.Process(context.Background(), "scan", "image/png", newTestPNG(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.ImagesFound != 1 {
		t.Fatalf("ImagesFound = %d, want 1", result.ImagesFound)
	}
	record := result.ImageAnalysis[0]
	if record.SourcePage != 1 {
		t.Errorf("SourcePage = %d, want 1", record.SourcePage)
	}
	if record.Filename != "enhanced_page_1_img_1.png" {
		t.Errorf("Filename = %q", record.Filename)
	}
	if record.OCRText != "recognized" {
		t.Errorf("OCRText = %q", record.OCRText)
	}
	if record.Summary != summarize.SkipMarker {
		t.Errorf("Summary = %q, want skip marker", record.Summary)
	}
	enhanced := filepath.Join(filepath.Dir(result.TextPDFPath), record.Filename)
	if _, err := os.Stat(enhanced); err != nil {
		t.Errorf("enhanced image missing: %v", err)
	}
}

func TestProcess_UnsupportedType(t *testing.T) {
	root := t.TempDir()
	p, err := New(&fakeOCR{}, nil, WithScratchRoot(root))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	_, err = p.Process(context.Background(), "notes.xyz", "application/octet-stream", []byte("payload"))
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedTypeError, got %v", err)
	}
	if !strings.Contains(unsupported.Error(), "notes.xyz") {
		t.Errorf("error does not cite filename: %v", unsupported)
	}

	// Failed requests leave no scratch directory behind.
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch root not cleaned, %d entries remain", len(entries))
	}
}

func TestProcess_BareImageDecodeFailure(t *testing.T) {
	p := newProcessor(t, nil)

	_, err := p.Process(context.Background(), "photo", "image/png", []byte("not an image"))
	if err == nil {
		t.Fatal("expected error for undecodable image")
	}
}

func TestProcess_SummaryCap(t *testing.T) {
	summarizer := &countingSummarizer{}
	p := newProcessor(t, summarizer, WithMaxSummaries(1))

	result, err := p.Process(context.Background(), "deck.pdf", "application/pdf", newTestPDF(t, "slides", 2))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.ImagesFound != 2 {
		t.Fatalf("ImagesFound = %d, want 2", result.ImagesFound)
	}
	if summarizer.calls != 1 {
		t.Errorf("summarizer called %d times, want 1", summarizer.calls)
	}
	if result.ImageAnalysis[0].Summary != "a summary" {
		t.Errorf("first summary = %q", result.ImageAnalysis[0].Summary)
	}
	if result.ImageAnalysis[1].Summary != summarize.SkipMarker {
		t.Errorf("second summary = %q, want skip marker", result.ImageAnalysis[1].Summary)
	}
}

func TestProcess_CapDoesNotLeakAcrossRequests(t *testing.T) {
	summarizer := &countingSummarizer{}
	p := newProcessor(t, summarizer, WithMaxSummaries(1))

	for i := 0; i < 2; i++ {
		if _, err := p.Process(context.Background(), "scan", "image/png", newTestPNG(t)); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	if summarizer.calls != 2 {
		t.Errorf("summarizer called %d times, want one per request", summarizer.calls)
	}
}

func TestProcess_DisabledSummarizerKeepsOCRText(t *testing.T) {
	data := newTestPDF(t, "deck", 1)

	withSummaries, err := newProcessor(t, &countingSummarizer{}).Process(context.Background(), "deck.pdf", "application/pdf", data)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	withoutSummaries, err := newProcessor(t, nil).Process(context.Background(), "deck.pdf", "application/pdf", data)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Removing the summarization capability degrades summaries only.
	if len(withoutSummaries.ImageAnalysis) != len(withSummaries.ImageAnalysis) {
		t.Fatalf("record counts differ: %d vs %d", len(withoutSummaries.ImageAnalysis), len(withSummaries.ImageAnalysis))
	}
	for i, record := range withoutSummaries.ImageAnalysis {
		if record.OCRText != withSummaries.ImageAnalysis[i].OCRText {
			t.Errorf("record %d: OCRText changed: %q vs %q", i, record.OCRText, withSummaries.ImageAnalysis[i].OCRText)
		}
		if record.Summary != summarize.SkipMarker {
			t.Errorf("record %d: Summary = %q, want skip marker", i, record.Summary)
		}
	}
}

func TestNew_SweepsStaleScratch(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, scratchPrefix+"stale")
	fresh := filepath.Join(root, scratchPrefix+"fresh")
	for _, dir := range []string{stale, fresh} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("Mkdir failed: %v", err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	p, err := New(&fakeOCR{}, nil, WithScratchRoot(root), WithScratchTTL(time.Hour))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale scratch dir not swept")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh scratch dir swept")
	}
}

func TestSweepLoop_ReclaimsBetweenRequests(t *testing.T) {
	root := t.TempDir()
	p, err := New(&fakeOCR{}, nil,
		WithScratchRoot(root),
		WithScratchTTL(50*time.Millisecond),
		WithSweepInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	// A directory left behind after New must still get reclaimed once it
	// outlives the TTL, without a process restart.
	stale := filepath.Join(root, scratchPrefix+"leftover")
	if err := os.Mkdir(stale, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(stale); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stale scratch dir not reclaimed by background sweep")
}

func TestClose_Idempotent(t *testing.T) {
	p := newProcessor(t, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestNew_RequiresExtractor(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil extractor")
	}
}

func TestState_String(t *testing.T) {
	if got := StateAggregating.String(); got != "aggregating" {
		t.Errorf("String = %q", got)
	}
	if got := State(99).String(); got != "unknown" {
		t.Errorf("String = %q", got)
	}
}
