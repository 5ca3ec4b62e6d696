// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package document defines the immutable governance document that the
// pipeline decomposes.
//
// A Document is content-addressed: its ID is a pure function of the body
// text, so re-running the pipeline on identical input always resolves to
// the same document and the same derived artifact ids. Provenance
// metadata travels in a YAML front-matter block ahead of the body.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is the immutable source text being decomposed.
//
// ID is derived from the body content, never from wall-clock time or
// counters. Two documents with identical bodies share an ID regardless
// of filename.
type Document struct {
	// ID is "doc-" plus the first 12 hex digits of the body's SHA-256.
	ID string `json:"id" yaml:"id"`

	// Body is the plain-text (markdown) content, front matter excluded.
	Body string `json:"body" yaml:"-"`

	// Meta is the provenance front matter.
	Meta FrontMatter `json:"meta" yaml:"meta"`
}

// FrontMatter is the provenance metadata block carried ahead of the body.
type FrontMatter struct {
	// OriginalFilename is the name of the uploaded source file.
	OriginalFilename string `yaml:"original_filename" json:"original_filename"`

	// SourceChecksum is the full SHA-256 of the body, hex encoded.
	SourceChecksum string `yaml:"source_checksum" json:"source_checksum"`

	// GeneratedAt is when the document entered the pipeline.
	GeneratedAt time.Time `yaml:"generated_at" json:"generated_at"`
}

// Checksum returns the full SHA-256 of the given text, hex encoded.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IDFor returns the content-addressed document id for a body.
func IDFor(body string) string {
	return "doc-" + Checksum(body)[:12]
}

// New builds a content-addressed Document from a filename and body.
// Any front matter already present in body should be stripped by the
// caller first (see ParseFrontMatter).
func New(originalFilename, body string, generatedAt time.Time) Document {
	return Document{
		ID:   IDFor(body),
		Body: body,
		Meta: FrontMatter{
			OriginalFilename: originalFilename,
			SourceChecksum:   Checksum(body),
			GeneratedAt:      generatedAt.UTC(),
		},
	}
}
