//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

package pipeline

import (
	"context"

	"trpc.group/trpc-go/trpc-docproc-go/summarize"
)

// cappedSummarizer enforces a per-request budget of external
// summarization calls. Once the budget is spent, remaining images get
// skipped summaries instead of API calls. Requests run single-threaded
// through their images, so no locking is needed.
type cappedSummarizer struct {
	inner     summarize.Summarizer
	remaining int
}

// Summarize delegates to the wrapped summarizer while budget remains.
func (c *cappedSummarizer) Summarize(ctx context.Context, imagePNG []byte, ocrText string) summarize.Summary {
	if c.remaining <= 0 {
		return summarize.Skipped()
	}
	c.remaining--
	return c.inner.Summarize(ctx, imagePNG, ocrText)
}

// Enabled reports whether the wrapped summarizer is configured.
func (c *cappedSummarizer) Enabled() bool {
	return c.inner.Enabled()
}
