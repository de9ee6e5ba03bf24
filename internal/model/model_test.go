package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingStatusTransitions(t *testing.T) {
	tests := []struct {
		from ReadingStatus
		to   ReadingStatus
		ok   bool
	}{
		{StatusPending, StatusAnalyzing, true},
		{StatusPending, StatusCompleted, true},
		{StatusAnalyzing, StatusCompleted, true},
		{StatusAnalyzing, StatusFailed, true},
		{StatusAnalyzing, StatusAnalyzing, true},
		{StatusAnalyzing, StatusPending, false},
		{StatusCompleted, StatusAnalyzing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusPending, ReadingStatus("weird"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestReadingCompleteClampsAccuracy(t *testing.T) {
	now := time.Date(2024, 1, 20, 10, 30, 0, 0, time.UTC)
	r := NewReading("r1", KindPalm, now)
	require.NoError(t, r.Advance(StatusAnalyzing, now))
	assert.Nil(t, r.Accuracy)

	require.NoError(t, r.Complete(json.RawMessage(`{"ok":true}`), 134.6, now.Add(time.Second)))
	require.NotNil(t, r.Accuracy)
	assert.Equal(t, 100.0, *r.Accuracy)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, now.Add(time.Second), r.UpdatedAt)

	err := r.Advance(StatusAnalyzing, now)
	assert.True(t, errors.Is(err, ErrStatusRegression))
	assert.Equal(t, StatusCompleted, r.Status)
}

func TestReadingPatchApply(t *testing.T) {
	now := time.Now()
	r := NewReading("r1", KindAstrology, now)
	failed := StatusFailed
	ref := "palm-1"

	out, err := ReadingPatch{Status: &failed, PalmReferenceID: &ref}.Apply(*r, now)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "palm-1", out.PalmReferenceID)
	assert.Equal(t, StatusPending, r.Status, "source reading must not change")

	pending := StatusPending
	_, err = ReadingPatch{Status: &pending}.Apply(out, now)
	assert.ErrorIs(t, err, ErrStatusRegression)
}

func TestReadingPatchCannotStripCompletedResult(t *testing.T) {
	now := time.Now()
	r := NewReading("r1", KindNumerology, now)
	require.NoError(t, r.Complete(json.RawMessage(`{"life_path_number":7}`), 95, now))

	_, err := ReadingPatch{Result: json.RawMessage(`null`)}.Apply(*r, now)
	assert.ErrorIs(t, err, ErrIncompleteReading)

	completed := StatusCompleted
	_, err = ReadingPatch{Status: &completed}.Apply(*NewReading("r2", KindPalm, now), now)
	assert.ErrorIs(t, err, ErrIncompleteReading)
}

func TestUserMergeAndDisplayName(t *testing.T) {
	u := User{ID: "u1", Email: "demo@x.com", FirstName: "Demo"}
	assert.Equal(t, "Demo", u.DisplayName())

	u.Merge(User{LastName: "User", Plan: "stellar_seeker", TotalReadings: 3})
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "Demo User", u.DisplayName())
	assert.Equal(t, "stellar_seeker", u.Plan)
	assert.Equal(t, 3, u.TotalReadings)

	assert.Equal(t, "x@y.z", User{Email: "x@y.z"}.DisplayName())
}
