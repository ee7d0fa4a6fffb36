//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// docprocsvr runs the document processing HTTP service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"trpc.group/trpc-go/trpc-docproc-go/log"
	"trpc.group/trpc-go/trpc-docproc-go/ocr/tesseract"
	"trpc.group/trpc-go/trpc-docproc-go/pipeline"
	"trpc.group/trpc-go/trpc-docproc-go/server"
	openaisummarize "trpc.group/trpc-go/trpc-docproc-go/summarize/openai"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to load .env: %v", err)
	}

	addr := flag.String("addr", envOr("DOCPROC_ADDR", ":8000"), "listen address")
	scratchRoot := flag.String("scratch-root", envOr("DOCPROC_SCRATCH_ROOT", os.TempDir()), "root directory for per-request scratch space")
	ocrLang := flag.String("ocr-lang", envOr("DOCPROC_OCR_LANG", "eng"), "tesseract language")
	flag.Parse()

	extractor, err := tesseract.New(tesseract.WithLanguage(*ocrLang))
	if err != nil {
		log.Fatalf("failed to initialize OCR engine: %v", err)
	}
	defer extractor.Close()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Warnf("OPENAI_API_KEY not set, image summaries will be skipped")
	}
	var summarizeOpts []openaisummarize.Option
	if model := os.Getenv("DOCPROC_MODEL"); model != "" {
		summarizeOpts = append(summarizeOpts, openaisummarize.WithModel(model))
	}
	summarizer := openaisummarize.New(apiKey, summarizeOpts...)

	pipelineOpts := []pipeline.Option{pipeline.WithScratchRoot(*scratchRoot)}
	if n := envInt("DOCPROC_MAX_SUMMARIES"); n > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithMaxSummaries(n))
	}
	processor, err := pipeline.New(extractor, summarizer, pipelineOpts...)
	if err != nil {
		log.Fatalf("failed to initialize pipeline: %v", err)
	}
	defer processor.Close()

	var serverOpts []server.Option
	if n := envInt("DOCPROC_CONCURRENCY"); n > 0 {
		serverOpts = append(serverOpts, server.WithConcurrency(n))
	}
	svc, err := server.New(processor, serverOpts...)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Start(*addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			log.Errorf("shutdown error: %v", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("invalid %s value %q: %v", key, v, err)
		return 0
	}
	return n
}
