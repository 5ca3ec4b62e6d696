// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package derive

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// minCriterionRunes is the shortest acceptance criterion or success
// criterion accepted as substantive.
const minCriterionRunes = 12

// genericPhrases are tautological criteria the model falls back to
// when it has nothing concrete to say. Compared lowercase.
var genericPhrases = []string{
	"works as expected",
	"works correctly",
	"functions properly",
	"meets requirements",
	"is implemented",
	"is completed",
	"as described above",
	"see above",
	"handles all cases",
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func schemaValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// structIssues runs tag validation and flattens violations to field
// issues.
func structIssues(v any) []FieldIssue {
	err := schemaValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldIssue{{Field: "(struct)", Message: err.Error()}}
	}
	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, FieldIssue{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
		})
	}
	return issues
}

// criteriaIssues rejects generic or trivially short criteria.
func criteriaIssues(field string, criteria []string) []FieldIssue {
	var issues []FieldIssue
	for i, c := range criteria {
		trimmed := strings.TrimSpace(c)
		name := fmt.Sprintf("%s[%d]", field, i)
		if utf8.RuneCountInString(trimmed) < minCriterionRunes {
			issues = append(issues, FieldIssue{Field: name, Message: "criterion too short to be testable"})
			continue
		}
		lower := strings.ToLower(trimmed)
		for _, phrase := range genericPhrases {
			if strings.Contains(lower, phrase) {
				issues = append(issues, FieldIssue{Field: name, Message: fmt.Sprintf("generic phrase %q", phrase)})
				break
			}
		}
	}
	return issues
}

// referenceIssues requires at least one reference that is traceable to
// the document: either a known section id or a string that appears in
// the document text.
func referenceIssues(field string, refs []string, documentText string, sectionIDs map[string]struct{}) []FieldIssue {
	traceable := false
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if _, ok := sectionIDs[ref]; ok {
			traceable = true
			break
		}
		if documentText != "" && strings.Contains(documentText, ref) {
			traceable = true
			break
		}
	}
	if !traceable {
		return []FieldIssue{{Field: field, Message: "no reference traceable to the source document"}}
	}
	return nil
}

// CheckEpic gates a derived Epic. knownSections maps valid section ids
// for source_sections verification.
func CheckEpic(e Epic, knownSections map[string]struct{}) error {
	issues := structIssues(e)
	issues = append(issues, criteriaIssues("success_criteria", e.SuccessCriteria)...)
	for i, sid := range e.SourceSections {
		if _, ok := knownSections[sid]; !ok {
			issues = append(issues, FieldIssue{
				Field:   fmt.Sprintf("source_sections[%d]", i),
				Message: fmt.Sprintf("unknown section id %q", sid),
			})
		}
	}
	if len(issues) > 0 {
		return &SchemaError{Stage: StageEpic, ArtifactID: e.EpicID, Fields: issues}
	}
	return nil
}

// CheckFeature gates a derived Feature against the document text used
// for citation checks.
func CheckFeature(f Feature, documentText string, sectionIDs map[string]struct{}) error {
	issues := structIssues(f)
	issues = append(issues, criteriaIssues("acceptance_criteria", f.AcceptanceCriteria)...)
	issues = append(issues, referenceIssues("governance_references", f.GovernanceReferences, documentText, sectionIDs)...)
	if len(issues) > 0 {
		return &SchemaError{Stage: StageFeature, ArtifactID: f.FeatureID, Fields: issues}
	}
	return nil
}

// CheckStory gates a derived Story.
func CheckStory(s Story, documentText string, sectionIDs map[string]struct{}) error {
	issues := structIssues(s)
	issues = append(issues, criteriaIssues("acceptance_criteria", s.AcceptanceCriteria)...)
	issues = append(issues, referenceIssues("governance_references", s.GovernanceReferences, documentText, sectionIDs)...)
	if len(issues) > 0 {
		return &SchemaError{Stage: StageStory, ArtifactID: s.StoryID, Fields: issues}
	}
	return nil
}
