//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package openai provides an OpenAI-backed visual summarizer.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/trpc-docproc-go/summarize"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second

	promptTemplate = `Analyze the provided image and its OCR text to generate a concise summary.
Focus on the document's purpose, key data points, and any important entities.

OCR Text:
---
%s
---`
)

// options holds internal configuration for the summarizer.
type options struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option configures the summarizer.
type Option func(*options)

// WithModel sets the chat model used for summarization.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL overrides the API base URL, e.g. for a compatible gateway.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithTimeout bounds each summarization call. Summarization is the only
// unbounded-latency step in the pipeline, so a per-call deadline is
// always applied; zero or negative values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Summarizer generates image summaries through the OpenAI chat API.
type Summarizer struct {
	client  openai.Client
	config  *options
	enabled bool
}

// New creates a summarizer. An empty apiKey yields a disabled summarizer
// whose Summarize always returns a skipped result; the process degrades
// instead of failing when no credential is configured.
func New(apiKey string, opts ...Option) *Summarizer {
	cfg := &options{
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var clientOpts []openaiopt.RequestOption
	if apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(cfg.baseURL))
	}

	return &Summarizer{
		client:  openai.NewClient(clientOpts...),
		config:  cfg,
		enabled: apiKey != "",
	}
}

// Enabled reports whether a credential is configured.
func (s *Summarizer) Enabled() bool {
	return s.enabled
}

// Summarize generates a summary for the PNG-encoded image combined with
// its OCR text. All failures degrade into the Summary status.
func (s *Summarizer) Summarize(ctx context.Context, imagePNG []byte, ocrText string) summarize.Summary {
	if !s.enabled {
		return summarize.Skipped()
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.timeout)
	defer cancel()

	parts := []openai.ChatCompletionContentPartUnionParam{
		{
			OfText: &openai.ChatCompletionContentPartTextParam{
				Text: fmt.Sprintf(promptTemplate, ocrText),
			},
		},
		{
			OfImageURL: &openai.ChatCompletionContentPartImageParam{
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(imagePNG),
				},
			},
		},
	}

	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.config.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: parts,
					},
				},
			},
		},
	})
	if err != nil {
		return summarize.Failed(fmt.Sprintf("OpenAI API call failed: %v", err))
	}
	if len(completion.Choices) == 0 {
		return summarize.Failed("OpenAI returned an empty response.")
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return summarize.Failed("OpenAI returned an empty response.")
	}
	return summarize.OK(text)
}
