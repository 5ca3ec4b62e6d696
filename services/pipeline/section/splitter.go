// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package section slices a governance document into ordered,
// heading-bounded sections.
//
// Splitting is deterministic: identical input yields identical sections,
// ids included, because a section id is a pure function of
// (document id, ordinal, title). Sections are recomputed on every run
// and never persisted as authoritative state.
//
// Heading detection uses goldmark's markdown AST rather than line
// scanning, so headings inside fenced code blocks are not treated as
// boundaries. Heading nesting is flattened: the output is one ordered
// sequence regardless of heading level.
package section

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is a deterministic, heading-bounded slice of document text.
type Section struct {
	// ID is "<document_id>-s<NN>-<slug>", a pure function of the
	// document id, ordinal, and title.
	ID string `json:"id"`

	// Title is the heading text, or "Introduction" for a synthesized
	// leading section.
	Title string `json:"title"`

	// Content is the text between this heading and the next boundary,
	// trimmed of surrounding blank lines. The heading line itself is
	// not part of Content.
	Content string `json:"content"`

	// Ordinal is the 1-based position in document order.
	Ordinal int `json:"ordinal"`

	// StartLine and EndLine are 1-based, inclusive line bounds in the
	// original text. StartLine is the heading line (or line 1 for the
	// synthesized leading section).
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// IntroductionTitle names the synthesized section for text preceding the
// first heading.
const IntroductionTitle = "Introduction"

// markdown is shared: parser configuration never changes and goldmark
// parsers create per-call state inside Parse.
var (
	markdown     goldmark.Markdown
	markdownOnce sync.Once
)

func parser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New()
	})
	return markdown
}

// Parse exposes the shared markdown parser so sibling packages (the
// content gate) count headings with identical semantics.
func Parse(reader text.Reader) ast.Node {
	return parser().Parser().Parse(reader)
}

// ID returns the section id for (documentID, ordinal, title).
// Exposed so other components can recompute ids without re-splitting.
func ID(documentID string, ordinal int, title string) string {
	return fmt.Sprintf("%s-s%02d-%s", documentID, ordinal, slug(title))
}

// ContentHash returns the SHA-256 of section content, hex encoded. This
// is the second half of the summary cache key.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Split slices text into ordered sections on heading boundaries.
//
// Inputs:
//   - documentID: The owning document's content-addressed id.
//   - body: The document body, front matter already stripped.
//
// Outputs:
//   - []Section: Ordered sections. Empty for whitespace-only input.
//
// Calling Split twice on identical input returns structurally identical
// output. Text ahead of the first heading, if non-empty, becomes a
// synthesized "Introduction" section.
func Split(documentID, body string) []Section {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	source := []byte(body)
	lines := splitLines(body)
	offsets := lineOffsets(body)

	type boundary struct {
		title string
		line  int // 1-based heading line
	}

	var boundaries []boundary
	root := parser().Parser().Parse(text.NewReader(source))
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if heading.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		seg := heading.Lines().At(0)
		boundaries = append(boundaries, boundary{
			title: headingText(heading, source),
			line:  lineAt(offsets, seg.Start),
		})
		return ast.WalkSkipChildren, nil
	})

	// goldmark walks in document order, but Setext headings report the
	// underline segment; keep boundaries sorted by line regardless.
	sort.SliceStable(boundaries, func(i, j int) bool {
		return boundaries[i].line < boundaries[j].line
	})

	var sections []Section
	ordinal := 0

	appendSection := func(title string, startLine, contentFrom, contentTo int) {
		content := joinLines(lines, contentFrom, contentTo)
		if contentTo < startLine {
			contentTo = startLine
		}
		ordinal++
		sections = append(sections, Section{
			ID:        ID(documentID, ordinal, title),
			Title:     title,
			Content:   content,
			Ordinal:   ordinal,
			StartLine: startLine,
			EndLine:   contentTo,
		})
	}

	if len(boundaries) == 0 {
		appendSection(IntroductionTitle, 1, 1, len(lines))
		return sections
	}

	// Leading text becomes the synthesized Introduction section.
	first := boundaries[0]
	if strings.TrimSpace(joinLines(lines, 1, first.line-1)) != "" {
		appendSection(IntroductionTitle, 1, 1, first.line-1)
	}

	for i, b := range boundaries {
		end := len(lines)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].line - 1
		}
		appendSection(b.title, b.line, b.line+1, end)
	}

	return sections
}

// headingText collects the plain text of a heading's inline children.
func headingText(heading *ast.Heading, source []byte) string {
	var sb strings.Builder
	for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			continue
		}
		// Emphasis, code spans and similar: take their text content.
		_ = ast.Walk(child, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if entering {
				if t, ok := n.(*ast.Text); ok {
					sb.Write(t.Segment.Value(source))
				}
			}
			return ast.WalkContinue, nil
		})
	}
	title := strings.TrimSpace(sb.String())
	if title == "" {
		title = "Untitled"
	}
	return title
}

// slug normalizes a title into an id-safe fragment.
func slug(title string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	s := strings.Trim(sb.String(), "-")
	if s == "" {
		s = "untitled"
	}
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}
	return s
}

// splitLines splits on \n, normalizing \r\n first.
func splitLines(body string) []string {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	return strings.Split(normalized, "\n")
}

// lineOffsets returns the byte offset of each 1-based line's start.
func lineOffsets(body string) []int {
	offsets := []int{0}
	for i := 0; i < len(body); i++ {
		if body[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// lineAt maps a byte offset to a 1-based line number.
func lineAt(offsets []int, offset int) int {
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i] > offset })
	return i
}

// joinLines joins 1-based inclusive line range [from, to], trimming
// surrounding blank lines.
func joinLines(lines []string, from, to int) string {
	if from < 1 {
		from = 1
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from > to {
		return ""
	}
	return strings.Trim(strings.Join(lines[from-1:to], "\n"), "\n \t")
}
