// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package section

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplit_HeadingBoundariesWithLeadingText(t *testing.T) {
	body := "Intro text.\n\n# A\n- req one\n\n# B\n- req two\n"

	sections := Split("doc-1", body)

	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3: %+v", len(sections), sections)
	}

	wantTitles := []string{IntroductionTitle, "A", "B"}
	for i, want := range wantTitles {
		if sections[i].Title != want {
			t.Errorf("section %d title = %q, want %q", i, sections[i].Title, want)
		}
		if sections[i].Ordinal != i+1 {
			t.Errorf("section %d ordinal = %d, want %d", i, sections[i].Ordinal, i+1)
		}
	}

	if sections[0].Content != "Intro text." {
		t.Errorf("intro content = %q", sections[0].Content)
	}
	if sections[1].Content != "- req one" {
		t.Errorf("section A content = %q", sections[1].Content)
	}
	if sections[2].Content != "- req two" {
		t.Errorf("section B content = %q", sections[2].Content)
	}
	if sections[1].StartLine != 3 {
		t.Errorf("section A start line = %d, want 3", sections[1].StartLine)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	body := "Preamble.\n\n# Scope\ntext\n\n## Detail\nmore\n\n# Rules\n- a\n- b\n"

	first := Split("doc-1", body)
	second := Split("doc-1", body)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Split is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestSplit_FlattensNesting(t *testing.T) {
	body := "# Top\nx\n\n## Nested\ny\n\n### Deeper\nz\n"

	sections := Split("doc-1", body)

	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3 (flattened)", len(sections))
	}
	for i, want := range []string{"Top", "Nested", "Deeper"} {
		if sections[i].Title != want {
			t.Errorf("section %d title = %q, want %q", i, sections[i].Title, want)
		}
	}
}

func TestSplit_NoHeadings(t *testing.T) {
	sections := Split("doc-1", "Just some text.\nMore text.\n")

	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Title != IntroductionTitle {
		t.Errorf("title = %q, want %q", sections[0].Title, IntroductionTitle)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	if got := Split("doc-1", "   \n\n  "); got != nil {
		t.Errorf("Split on whitespace = %+v, want nil", got)
	}
}

func TestSplit_HeadingInCodeFenceIsNotBoundary(t *testing.T) {
	body := "# Real\n\n```\n# not a heading\n```\n\n# Also Real\nx\n"

	sections := Split("doc-1", body)

	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2: %+v", len(sections), sections)
	}
	if sections[0].Title != "Real" || sections[1].Title != "Also Real" {
		t.Errorf("titles = %q, %q", sections[0].Title, sections[1].Title)
	}
	if !strings.Contains(sections[0].Content, "# not a heading") {
		t.Errorf("fenced heading missing from content: %q", sections[0].Content)
	}
}

func TestID_PureFunction(t *testing.T) {
	a := ID("doc-1", 2, "Data Retention")
	b := ID("doc-1", 2, "Data Retention")
	if a != b {
		t.Errorf("ID not stable: %s vs %s", a, b)
	}
	if a != "doc-1-s02-data-retention" {
		t.Errorf("ID = %q", a)
	}
}

func TestSplit_IDsStableAcrossRuns(t *testing.T) {
	body := "# One\na\n\n# Two\nb\n"
	first := Split("doc-9", body)
	second := Split("doc-9", body)
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("section %d id differs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}
