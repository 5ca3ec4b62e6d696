// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit records one replayable record per pipeline run in an
// append-only BadgerDB store. Records are queryable by audit id and by
// any artifact id the run produced.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Inputs captures everything needed to reproduce a run.
type Inputs struct {
	DocumentID    string            `json:"document_id"`
	Checksum      string            `json:"checksum"`
	StageVersions map[string]string `json:"stage_versions"`
	Model         string            `json:"model"`
}

// Outputs captures what a run produced.
type Outputs struct {
	ArtifactIDs    []string `json:"artifact_ids"`
	OutputChecksum string   `json:"output_checksum"`
}

// Result captures how a run ended.
type Result struct {
	Status     string   `json:"status"`
	ErrorCodes []string `json:"error_codes,omitempty"`
}

// Record is one append-only audit entry. Replaying a run with the same
// Inputs and comparing OutputChecksum detects drift in the generative
// capability or the pipeline itself.
type Record struct {
	AuditID   string    `json:"audit_id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Inputs    Inputs    `json:"inputs"`
	Outputs   Outputs   `json:"outputs"`
	Result    Result    `json:"result"`
}

// OutputChecksum hashes the produced artifact ids in sorted order, so
// the checksum is independent of production order.
func OutputChecksum(artifactIDs []string) string {
	sorted := append([]string(nil), artifactIDs...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}
