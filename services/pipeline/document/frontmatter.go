// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package document

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the text did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("document: missing front matter")

	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("document: malformed front matter")
)

// ParseFrontMatter splits text that begins with `---` YAML fences into
// its metadata block and body. Text without a fence returns
// ErrMissingFrontMatter; callers treat that as "body only".
func ParseFrontMatter(content []byte) (FrontMatter, []byte, error) {
	if len(content) == 0 {
		return FrontMatter{}, nil, ErrMissingFrontMatter
	}
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return FrontMatter{}, nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return FrontMatter{}, nil, ErrMalformedFrontMatter
	}

	var meta FrontMatter
	if err := yaml.Unmarshal(parts[0], &meta); err != nil {
		return FrontMatter{}, nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	body := bytes.TrimPrefix(parts[1], []byte("\n"))
	return meta, body, nil
}

// WriteFrontMatter renders metadata and body with YAML fences, the form
// persisted to the workspace.
func WriteFrontMatter(meta FrontMatter, body []byte) ([]byte, error) {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("document: encode front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// StripFrontMatter returns just the body, tolerating absent front matter.
// Used by the content gate so minimum-length checks exclude metadata.
func StripFrontMatter(content []byte) []byte {
	_, body, err := ParseFrontMatter(content)
	if err != nil {
		return content
	}
	return body
}
