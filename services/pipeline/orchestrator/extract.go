// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat indicates a document format the configured
// extractor cannot convert to plain text.
var ErrUnsupportedFormat = errors.New("orchestrator: unsupported document format")

// TextExtractor converts an uploaded document into plain text. Binary
// extraction (PDF, DOCX) lives behind this boundary; the pipeline only
// ever sees the converted text.
type TextExtractor interface {
	Convert(ctx context.Context, filename string, data []byte) (string, error)
}

// PlainTextExtractor handles documents that are already text.
type PlainTextExtractor struct{}

// Convert implements TextExtractor for markdown and plain-text files.
func (PlainTextExtractor) Convert(ctx context.Context, filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown", ".txt", ".text":
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}
