// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workspace persists derived artifacts into a git-backed
// workspace under precondition checks, so every derivation run lands
// as one traceable commit.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// GitWorkspace drives the git command line for one repository.
//
// # Thread Safety
//
// All methods are safe for concurrent use; git serializes index writes
// itself.
type GitWorkspace struct {
	root    string
	timeout time.Duration
}

// NewGitWorkspace creates a workspace handle for the repository at
// root.
//
// # Inputs
//
//   - root: Absolute path to the workspace repository.
//   - timeout: Maximum duration for each git operation; <=0 means 30s.
//
// # Outputs
//
//   - *GitWorkspace: Ready-to-use handle.
//   - error: Non-nil if root is not absolute.
func NewGitWorkspace(root string, timeout time.Duration) (*GitWorkspace, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("workspace root must be absolute: %s", root)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GitWorkspace{root: root, timeout: timeout}, nil
}

// Root returns the workspace root path.
func (w *GitWorkspace) Root() string {
	return w.root
}

// run executes a git command and returns stdout.
func (w *GitWorkspace) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = w.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git %s: timeout after %v", args[0], w.timeout)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepository reports whether the root is inside a git repository.
func (w *GitWorkspace) IsRepository(ctx context.Context) bool {
	_, err := w.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// IsClean reports whether the working tree has no uncommitted changes
// outside the given path prefixes. Empty prefixes means any change at
// all makes the tree dirty.
func (w *GitWorkspace) IsClean(ctx context.Context, allowedPrefixes ...string) (bool, []string, error) {
	out, err := w.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, nil, err
	}
	if out == "" {
		return true, nil, nil
	}

	var unrelated []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		// Porcelain format: XY <path>, rename lines use "old -> new".
		path := strings.TrimSpace(line[3:])
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		if !hasAnyPrefix(path, allowedPrefixes) {
			unrelated = append(unrelated, path)
		}
	}
	return len(unrelated) == 0, unrelated, nil
}

// StageAndCommit stages the given workspace-relative paths and commits
// them with the message. Returns the new commit hash. When staging
// produces no change against HEAD, no commit is made and the current
// HEAD hash is returned, so re-running over unchanged artifacts is a
// no-op instead of a "nothing to commit" failure.
func (w *GitWorkspace) StageAndCommit(ctx context.Context, paths []string, message string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("workspace: no paths to commit")
	}

	args := append([]string{"add", "--"}, paths...)
	if _, err := w.run(ctx, args...); err != nil {
		return "", err
	}
	// diff --cached exits 0 when the index matches HEAD. A non-zero
	// exit means staged changes; a genuine failure will resurface on
	// the commit itself.
	if _, err := w.run(ctx, "diff", "--cached", "--quiet"); err == nil {
		return w.run(ctx, "rev-parse", "HEAD")
	}
	if _, err := w.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return w.run(ctx, "rev-parse", "HEAD")
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
