// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workspace

import "fmt"

// WorkspaceError indicates the target directory is not a usable
// versioned workspace.
type WorkspaceError struct {
	Path        string
	Reason      string
	Remediation string
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s: %s", e.Path, e.Reason)
}

// DirtyWorkingTreeError indicates unrelated uncommitted changes that
// would be bundled into a traceable commit.
type DirtyWorkingTreeError struct {
	Path  string
	Files []string
}

func (e *DirtyWorkingTreeError) Error() string {
	return fmt.Sprintf("workspace %s: working tree has %d unrelated uncommitted change(s)", e.Path, len(e.Files))
}

// PromptConflictError indicates an attempt to overwrite a committed
// prompt with different content. Prompts are immutable once written;
// the story they derive from must change instead.
type PromptConflictError struct {
	PromptID string
	Path     string
}

func (e *PromptConflictError) Error() string {
	return fmt.Sprintf("prompt %s: %s already exists with different content", e.PromptID, e.Path)
}

// CommitError wraps a failure in the commit step itself, after the
// preconditions passed.
type CommitError struct {
	Path string
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("workspace %s: commit failed: %v", e.Path, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
