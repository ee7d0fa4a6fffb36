//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

package extract

import (
	"strings"
	"sync"
)

// Builder is a function that creates a new Extractor instance.
type Builder func() Extractor

// Registry manages registration of document extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Builder // extension -> builder
}

// globalRegistry is the singleton registry instance.
var globalRegistry = &Registry{
	extractors: make(map[string]Builder),
}

// RegisterExtractor registers an extractor builder for specific file
// extensions. Extensions should include the dot prefix (e.g. ".pdf").
func RegisterExtractor(extensions []string, builder Builder) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	for _, ext := range extensions {
		globalRegistry.extractors[strings.ToLower(ext)] = builder
	}
}

// GetExtractor returns a new extractor instance for the given file
// extension. The extension should include the dot prefix and is matched
// case-insensitively. Returns nil and false if no extractor is
// registered for the extension.
func GetExtractor(extension string) (Extractor, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	builder, exists := globalRegistry.extractors[strings.ToLower(extension)]
	if !exists {
		return nil, false
	}
	return builder(), true
}

// SupportedExtensions returns all registered extensions.
func SupportedExtensions() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	exts := make([]string, 0, len(globalRegistry.extractors))
	for ext := range globalRegistry.extractors {
		exts = append(exts, ext)
	}
	return exts
}
