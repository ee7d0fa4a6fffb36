//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

package extract

import (
	"context"
	"testing"

	"trpc.group/trpc-go/trpc-docproc-go/analyze"
)

type stubExtractor struct{ name string }

func (s *stubExtractor) Extract(_ context.Context, _ []byte, _ *analyze.Unit, _ string) (*Result, error) {
	return &Result{}, nil
}

func (s *stubExtractor) Name() string                  { return s.name }
func (s *stubExtractor) SupportedExtensions() []string { return []string{".stub"} }

func TestRegistry(t *testing.T) {
	RegisterExtractor([]string{".stub", ".STB"}, func() Extractor {
		return &stubExtractor{name: "stub"}
	})

	if _, ok := GetExtractor(".nope"); ok {
		t.Fatal("unexpected extractor for unregistered extension")
	}

	ext, ok := GetExtractor(".stub")
	if !ok {
		t.Fatal("registered extension not found")
	}
	if ext.Name() != "stub" {
		t.Fatalf("Name = %q", ext.Name())
	}

	// Lookup is case-insensitive.
	if _, ok := GetExtractor(".STUB"); !ok {
		t.Fatal("case-insensitive lookup failed")
	}
	if _, ok := GetExtractor(".stb"); !ok {
		t.Fatal("extension registered uppercase not found lowercase")
	}
}

func TestGetExtractorReturnsFreshInstances(t *testing.T) {
	RegisterExtractor([]string{".fresh"}, func() Extractor {
		return &stubExtractor{name: "fresh"}
	})

	a, _ := GetExtractor(".fresh")
	b, _ := GetExtractor(".fresh")
	if a == b {
		t.Fatal("expected distinct instances per lookup")
	}
}
