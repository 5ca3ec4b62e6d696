// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord() Record {
	return Record{
		Actor: "pipeline",
		Inputs: Inputs{
			DocumentID: "doc-abc123def456",
			Checksum:   "c0ffee",
			StageVersions: map[string]string{
				"epic": "1", "feature": "1", "story": "1",
			},
			Model: "gpt-4o",
		},
		Outputs: Outputs{
			ArtifactIDs: []string{
				"doc-abc123def456-epic-01",
				"doc-abc123def456-epic-01-feature-01",
			},
		},
		Result: Result{Status: StatusSucceeded},
	}
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	store := openTestStore(t)

	rec, err := store.Append(testRecord())
	require.NoError(t, err)
	assert.NotEmpty(t, rec.AuditID)
	assert.False(t, rec.Timestamp.IsZero())

	got, err := store.Get(rec.AuditID)
	require.NoError(t, err)
	assert.Equal(t, rec.Inputs, got.Inputs)
	assert.Equal(t, rec.Outputs.ArtifactIDs, got.Outputs.ArtifactIDs)
}

func TestAppendRejectsEmptyActor(t *testing.T) {
	store := openTestStore(t)
	rec := testRecord()
	rec.Actor = ""
	_, err := store.Append(rec)
	assert.ErrorIs(t, err, ErrEmptyActor)
}

func TestAppendIsAppendOnly(t *testing.T) {
	store := openTestStore(t)

	first, err := store.Append(testRecord())
	require.NoError(t, err)
	second, err := store.Append(testRecord())
	require.NoError(t, err)
	assert.NotEqual(t, first.AuditID, second.AuditID,
		"identical runs must produce distinct records")

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByArtifact(t *testing.T) {
	store := openTestStore(t)

	first, err := store.Append(testRecord())
	require.NoError(t, err)

	other := testRecord()
	other.Outputs.ArtifactIDs = []string{"doc-zzz-epic-01"}
	_, err = store.Append(other)
	require.NoError(t, err)

	records, err := store.GetByArtifact("doc-abc123def456-epic-01")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, first.AuditID, records[0].AuditID)

	none, err := store.GetByArtifact("unknown-artifact")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFailedRunCarriesErrorCodes(t *testing.T) {
	store := openTestStore(t)
	rec := testRecord()
	rec.Result = Result{Status: StatusFailed, ErrorCodes: []string{"CONTENT_TOO_SHORT"}}
	rec.Outputs = Outputs{}

	stored, err := store.Append(rec)
	require.NoError(t, err)
	got, err := store.Get(stored.AuditID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Result.Status)
	assert.Equal(t, []string{"CONTENT_TOO_SHORT"}, got.Result.ErrorCodes)
}

func TestOutputChecksumOrderIndependent(t *testing.T) {
	a := OutputChecksum([]string{"x", "y", "z"})
	b := OutputChecksum([]string{"z", "x", "y"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, OutputChecksum([]string{"x", "y"}))
}

func TestRecordTimestampsAreUTC(t *testing.T) {
	store := openTestStore(t)
	rec, err := store.Append(testRecord())
	require.NoError(t, err)
	_, offset := rec.Timestamp.Zone()
	assert.Zero(t, offset)
	assert.WithinDuration(t, time.Now().UTC(), rec.Timestamp, 5*time.Second)
}
