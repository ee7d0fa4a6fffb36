//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package server exposes the document processing pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-docproc-go/log"
	"trpc.group/trpc-go/trpc-docproc-go/pipeline"
)

const (
	defaultConcurrency   = 8
	defaultMaxUploadSize = 50 << 20 // 50 MiB
)

// DocumentProcessor runs one uploaded document through the pipeline.
type DocumentProcessor interface {
	Process(ctx context.Context, filename, contentType string, data []byte) (*pipeline.Result, error)
}

// options holds server configuration.
type options struct {
	concurrency    int
	maxUploadSize  int64
	allowedOrigins []string
}

// Option configures the Server instance.
type Option func(*options)

// WithConcurrency bounds how many documents are processed at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMaxUploadSize bounds the accepted upload size in bytes.
func WithMaxUploadSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxUploadSize = n
		}
	}
}

// WithAllowedOrigins restricts CORS origins. Defaults to all origins.
func WithAllowedOrigins(origins []string) Option {
	return func(o *options) {
		if len(origins) > 0 {
			o.allowedOrigins = origins
		}
	}
}

// Server is the HTTP front end of the document processor.
type Server struct {
	processor DocumentProcessor
	router    *mux.Router
	pool      *ants.Pool

	maxUploadSize int64
	httpServer    *http.Server
}

// errorBody matches the error response shape of the API.
type errorBody struct {
	Detail string `json:"detail"`
}

// New creates an HTTP server around the given processor.
func New(processor DocumentProcessor, opts ...Option) (*Server, error) {
	if processor == nil {
		return nil, errors.New("server: document processor is required")
	}
	cfg := &options{
		concurrency:    defaultConcurrency,
		maxUploadSize:  defaultMaxUploadSize,
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pool, err := ants.NewPool(cfg.concurrency)
	if err != nil {
		return nil, fmt.Errorf("server: create worker pool: %w", err)
	}

	s := &Server{
		processor:     processor,
		router:        mux.NewRouter(),
		pool:          pool,
		maxUploadSize: cfg.maxUploadSize,
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.router }

// registerRoutes sets up the REST endpoints.
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/process-document/", s.handleProcessDocument).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("server: listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the worker pool.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.pool.Release()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProcessDocument accepts one multipart upload in the "file" field
// and returns the full processing report. Processing runs on the bounded
// worker pool so a burst of uploads cannot exhaust the host.
func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "No file uploaded. Expected a multipart form field named 'file'."})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Failed to read uploaded file."})
		return
	}
	if int64(len(data)) > s.maxUploadSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
			Detail: fmt.Sprintf("File exceeds the %d byte upload limit.", s.maxUploadSize),
		})
		return
	}

	var (
		result *pipeline.Result
		perr   error
	)
	done := make(chan struct{})
	submitErr := s.pool.Submit(func() {
		defer close(done)
		result, perr = s.processor.Process(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	})
	if submitErr != nil {
		log.Errorf("server: worker pool rejected request: %v", submitErr)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "Server is at capacity. Please retry."})
		return
	}
	<-done

	if perr != nil {
		var unsupported *pipeline.UnsupportedTypeError
		if errors.As(perr, &unsupported) {
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: unsupported.Error()})
			return
		}
		log.Errorf("server: processing %s failed: %v", header.Filename, perr)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Detail: fmt.Sprintf("An unexpected error occurred processing %s. Details: %v", header.Filename, perr),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("server: failed to encode response: %v", err)
	}
}
