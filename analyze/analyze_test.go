//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

package analyze

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trpc.group/trpc-go/trpc-docproc-go/summarize"
)

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) ExtractText(_ context.Context, _ []byte) (string, error) {
	return f.text, f.err
}

func (f *fakeOCR) ExtractTextFromReader(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return f.ExtractText(ctx, data)
}

func (f *fakeOCR) Close() error { return nil }

type fakeSummarizer struct {
	result summarize.Summary
	calls  int
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ []byte, _ string) summarize.Summary {
	f.calls++
	return f.result
}

func (f *fakeSummarizer) Enabled() bool { return true }

// newTestPNG draws a small grayscale gradient and encodes it as PNG.
func newTestPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 12, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(20 * x)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyze_Success(t *testing.T) {
	scratch := t.TempDir()
	sum := &fakeSummarizer{result: summarize.OK("a gradient")}
	unit := New(&fakeOCR{text: "Invoice #4421"}, sum)

	record, enhanced, err := unit.Analyze(context.Background(), newTestPNG(t), Source{Page: 2, Index: 0}, scratch)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if record.SourcePage != 3 {
		t.Errorf("SourcePage = %d, want 3", record.SourcePage)
	}
	if record.Filename != "enhanced_page_3_img_1.png" {
		t.Errorf("Filename = %q", record.Filename)
	}
	if record.OCRText != "Invoice #4421" {
		t.Errorf("OCRText = %q", record.OCRText)
	}
	if record.Summary != "a gradient" || record.SummaryStatus != summarize.StatusOK {
		t.Errorf("Summary = %q (status %v)", record.Summary, record.SummaryStatus)
	}
	if enhanced == nil || enhanced.Rect.Dx() != 12 || enhanced.Rect.Dy() != 8 {
		t.Fatalf("enhanced image missing or wrong size: %v", enhanced)
	}

	// The enhanced PNG must exist in scratch and decode as a valid image.
	data, err := os.ReadFile(filepath.Join(scratch, record.Filename))
	if err != nil {
		t.Fatalf("enhanced image not persisted: %v", err)
	}
	persisted, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("persisted file is not a valid PNG: %v", err)
	}
	if persisted.Bounds().Dx() != 12 {
		t.Errorf("persisted width = %d, want 12", persisted.Bounds().Dx())
	}
}

func TestAnalyze_OCRFailureDegrades(t *testing.T) {
	unit := New(&fakeOCR{err: errors.New("engine crashed")}, &fakeSummarizer{result: summarize.OK("s")})

	record, _, err := unit.Analyze(context.Background(), newTestPNG(t), Source{}, t.TempDir())
	if err != nil {
		t.Fatalf("OCR failure must not fail the image: %v", err)
	}
	if !record.OCRFailed {
		t.Error("OCRFailed not set")
	}
	if !strings.HasPrefix(record.OCRText, "[ERROR] OCR failed: ") {
		t.Errorf("OCRText = %q, want error marker", record.OCRText)
	}
	// Summarization still ran with the degraded OCR text.
	if record.Summary != "s" {
		t.Errorf("Summary = %q, want %q", record.Summary, "s")
	}
}

func TestAnalyze_NilSummarizerSkips(t *testing.T) {
	unit := New(&fakeOCR{text: "text"}, nil)

	record, _, err := unit.Analyze(context.Background(), newTestPNG(t), Source{}, t.TempDir())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if record.SummaryStatus != summarize.StatusSkipped {
		t.Errorf("SummaryStatus = %v, want skipped", record.SummaryStatus)
	}
	if record.Summary != summarize.SkipMarker {
		t.Errorf("Summary = %q, want skip marker", record.Summary)
	}
}

func TestAnalyze_DecodeFailureIsFatalForImage(t *testing.T) {
	unit := New(&fakeOCR{text: "text"}, nil)

	_, _, err := unit.Analyze(context.Background(), []byte("not an image"), Source{}, t.TempDir())
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestAnalyze_FilenameUniquePerSource(t *testing.T) {
	unit := New(&fakeOCR{text: "t"}, nil)
	scratch := t.TempDir()

	seen := map[string]bool{}
	for _, src := range []Source{{0, 0}, {0, 1}, {1, 0}, {2, 2}} {
		record, _, err := unit.Analyze(context.Background(), newTestPNG(t), src, scratch)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if seen[record.Filename] {
			t.Fatalf("duplicate filename %q", record.Filename)
		}
		seen[record.Filename] = true
	}
}
