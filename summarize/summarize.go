//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package summarize defines the visual summarization capability.
//
// A summarizer looks at an enhanced document image together with its OCR
// text and produces a short natural-language summary. Summarization is an
// enrichment step: when the capability is unavailable or a call fails, the
// result degrades into a tagged non-summary instead of an error, so one
// image can never abort the batch it belongs to.
package summarize

import "context"

// Status tags a summary result.
type Status int

const (
	// StatusOK marks a successfully generated summary.
	StatusOK Status = iota
	// StatusSkipped marks a summary that was not attempted, typically
	// because no credential is configured.
	StatusSkipped
	// StatusFailed marks a summary attempt that failed (network, quota,
	// malformed or empty response).
	StatusFailed
)

// Wire markers preserved for the JSON report. Callers that want to
// distinguish "skipped" from "failed" should branch on Status, not on
// these strings.
const (
	// SkipMarker is emitted when no credential is configured.
	SkipMarker = "[INFO] OpenAI API key not configured. Skipping summary."
	// failPrefix prefixes every failed-summary rendering.
	failPrefix = "[ERROR] "
)

// Summary is the result of one summarization attempt.
type Summary struct {
	// Text holds the generated summary when Status is StatusOK.
	Text string
	// Status tags the outcome.
	Status Status
	// Reason describes why a summary is missing when Status is not
	// StatusOK.
	Reason string
}

// OK wraps a generated summary text.
func OK(text string) Summary {
	return Summary{Text: text, Status: StatusOK}
}

// Skipped reports that summarization was not attempted.
func Skipped() Summary {
	return Summary{Status: StatusSkipped}
}

// Failed reports a failed summarization attempt.
func Failed(reason string) Summary {
	return Summary{Status: StatusFailed, Reason: reason}
}

// String renders the summary for the per-image report, degrading to the
// fixed wire markers for skipped and failed results.
func (s Summary) String() string {
	switch s.Status {
	case StatusSkipped:
		return SkipMarker
	case StatusFailed:
		return failPrefix + s.Reason
	default:
		return s.Text
	}
}

// Summarizer produces a summary for one enhanced image.
type Summarizer interface {
	// Summarize generates a summary for the PNG-encoded image and its OCR
	// text. Failures are reported through the Summary status, not as
	// errors.
	Summarize(ctx context.Context, imagePNG []byte, ocrText string) Summary

	// Enabled reports whether the capability is configured. When false,
	// Summarize returns a skipped result without any external call.
	Enabled() bool
}
