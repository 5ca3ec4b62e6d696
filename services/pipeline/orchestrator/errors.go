// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/derive"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/hierarchy"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/summary"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/validate"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/workspace"
)

// GateError indicates the content quality gate rejected the document.
// No derivation call is made when this is returned.
type GateError struct {
	Validation validate.Result
}

func (e *GateError) Error() string {
	return fmt.Sprintf("orchestrator: content gate failed with %d issue(s)", len(e.Validation.Issues))
}

// HierarchyError indicates the derived artifact set failed structural
// validation. Artifacts produced before the check are kept.
type HierarchyError struct {
	Result hierarchy.Result
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("orchestrator: hierarchy validation failed with %d error(s)", len(e.Result.Errors))
}

// errorCodes flattens a run failure into machine-auditable codes for
// the audit record.
func errorCodes(err error) []string {
	if err == nil {
		return nil
	}

	var gate *GateError
	if errors.As(err, &gate) {
		codes := make([]string, 0, len(gate.Validation.Issues))
		for _, issue := range gate.Validation.Issues {
			codes = append(codes, issue.Code)
		}
		return codes
	}
	var hier *HierarchyError
	if errors.As(err, &hier) {
		codes := make([]string, 0, len(hier.Result.Errors))
		for _, issue := range hier.Result.Errors {
			codes = append(codes, issue.Code)
		}
		return codes
	}

	var schema *derive.SchemaError
	if errors.As(err, &schema) {
		return []string{"SCHEMA_VALIDATION"}
	}
	var derivation *derive.DerivationError
	if errors.As(err, &derivation) {
		return []string{"DERIVATION_FAILED"}
	}
	var summarize *summary.SummarizeError
	if errors.As(err, &summarize) {
		return []string{"SUMMARY_FAILED"}
	}
	var dirty *workspace.DirtyWorkingTreeError
	if errors.As(err, &dirty) {
		return []string{"DIRTY_WORKING_TREE"}
	}
	var ws *workspace.WorkspaceError
	if errors.As(err, &ws) {
		return []string{"WORKSPACE_ERROR"}
	}
	var conflict *workspace.PromptConflictError
	if errors.As(err, &conflict) {
		return []string{"PROMPT_CONFLICT"}
	}
	if errors.Is(err, ErrUnsupportedFormat) {
		return []string{"UNSUPPORTED_FORMAT"}
	}
	return []string{"INTERNAL"}
}
