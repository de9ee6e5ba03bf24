package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/model"
)

type stubLister struct {
	page *model.ReadingPage
	err  error

	gotLimit int
}

func (s *stubLister) ListReadings(ctx context.Context, limit, offset int) (*model.ReadingPage, error) {
	s.gotLimit = limit
	return s.page, s.err
}

func reading(id string, kind model.ReadingKind, status model.ReadingStatus, acc float64) model.Reading {
	r := model.Reading{ID: id, Kind: kind, Status: status, Result: json.RawMessage(`{}`)}
	if status == model.StatusCompleted {
		r.Accuracy = &acc
	}
	return r
}

func ids(rs []model.Reading) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestAddReadingPrepends(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())

	s.AddReading(reading("a", model.KindPalm, model.StatusCompleted, 90))
	s.AddReading(reading("b", model.KindAstrology, model.StatusCompleted, 80))

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, []string{"b", "a"}, ids(h))
}

func TestUpdateReading(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	s.AddReading(reading("a", model.KindPalm, model.StatusAnalyzing, 0))
	s.AddReading(reading("b", model.KindPalm, model.StatusCompleted, 70))
	cur := reading("a", model.KindPalm, model.StatusAnalyzing, 0)
	s.SetCurrentReading(&cur)

	completed := model.StatusCompleted
	acc := 88.4
	ok, err := s.UpdateReading("a", model.ReadingPatch{Status: &completed, Accuracy: &acc})
	require.NoError(t, err)
	require.True(t, ok)

	h := s.History()
	assert.Equal(t, []string{"b", "a"}, ids(h))
	assert.Equal(t, model.StatusCompleted, h[1].Status)
	require.NotNil(t, h[1].Accuracy)
	assert.Equal(t, 88.0, *h[1].Accuracy)

	c, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, c.Status)
}

func TestUpdateReadingUnknownID(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	s.AddReading(reading("a", model.KindPalm, model.StatusCompleted, 90))
	before := s.History()

	completed := model.StatusFailed
	ok, err := s.UpdateReading("missing", model.ReadingPatch{Status: &completed})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, s.History())
}

func TestUpdateReadingCompletionNeedsResultAndAccuracy(t *testing.T) {
	completed := model.StatusCompleted
	acc := 93.0

	tests := []struct {
		name  string
		start model.Reading
		patch model.ReadingPatch
	}{
		{
			name:  "status only",
			start: model.Reading{ID: "a", Kind: model.KindPalm, Status: model.StatusPending},
			patch: model.ReadingPatch{Status: &completed},
		},
		{
			name:  "accuracy without result",
			start: model.Reading{ID: "a", Kind: model.KindPalm, Status: model.StatusAnalyzing},
			patch: model.ReadingPatch{Status: &completed, Accuracy: &acc},
		},
		{
			name:  "result without accuracy",
			start: model.Reading{ID: "a", Kind: model.KindPalm, Status: model.StatusAnalyzing},
			patch: model.ReadingPatch{Status: &completed, Result: json.RawMessage(`{"overallScore":0.9}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewReadings(&stubLister{}, zap.NewNop())
			s.AddReading(tt.start)

			_, err := s.UpdateReading("a", tt.patch)
			require.ErrorIs(t, err, model.ErrIncompleteReading)

			h := s.History()
			require.Len(t, h, 1)
			assert.Equal(t, tt.start.Status, h[0].Status)
			assert.Nil(t, h[0].Accuracy)
		})
	}

	s := NewReadings(&stubLister{}, zap.NewNop())
	s.AddReading(model.Reading{ID: "a", Kind: model.KindPalm, Status: model.StatusPending})
	ok, err := s.UpdateReading("a", model.ReadingPatch{
		Status:   &completed,
		Accuracy: &acc,
		Result:   json.RawMessage(`{"overallScore":0.93}`),
	})
	require.NoError(t, err)
	require.True(t, ok)
	got := s.History()[0]
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Accuracy)
	assert.Equal(t, 93.0, *got.Accuracy)
	assert.JSONEq(t, `{"overallScore":0.93}`, string(got.Result))
}

func TestUpdateReadingRejectsRegression(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	s.AddReading(reading("a", model.KindPalm, model.StatusCompleted, 90))

	pending := model.StatusPending
	_, err := s.UpdateReading("a", model.ReadingPatch{Status: &pending})
	assert.ErrorIs(t, err, model.ErrStatusRegression)
	assert.Equal(t, model.StatusCompleted, s.History()[0].Status)
}

func TestDeleteReadingClearsCurrent(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	s.AddReading(reading("a", model.KindPalm, model.StatusCompleted, 90))
	s.AddReading(reading("b", model.KindPalm, model.StatusCompleted, 90))
	s.AddReading(reading("c", model.KindPalm, model.StatusCompleted, 90))
	cur := reading("b", model.KindPalm, model.StatusCompleted, 90)
	s.SetCurrentReading(&cur)

	assert.True(t, s.DeleteReading("b"))
	assert.Equal(t, []string{"c", "a"}, ids(s.History()))
	_, ok := s.Current()
	assert.False(t, ok)

	assert.False(t, s.DeleteReading("b"))
}

func TestLoadReadings(t *testing.T) {
	lister := &stubLister{page: &model.ReadingPage{Count: 1, Results: []model.Reading{
		reading("srv", model.KindNumerology, model.StatusCompleted, 75),
	}}}
	s := NewReadings(lister, zap.NewNop())
	s.AddReading(reading("local", model.KindPalm, model.StatusCompleted, 90))

	require.NoError(t, s.LoadReadings(context.Background(), 20))
	assert.Equal(t, 20, lister.gotLimit)
	assert.Equal(t, []string{"srv"}, ids(s.History()))
}

func TestLoadReadingsErrorKeepsHistory(t *testing.T) {
	lister := &stubLister{err: errors.New("boom")}
	s := NewReadings(lister, zap.NewNop())
	s.AddReading(reading("local", model.KindPalm, model.StatusCompleted, 90))

	err := s.LoadReadings(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, []string{"local"}, ids(s.History()))
}

func TestTryBeginAnalysis(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	s.SetProgress(40)

	require.True(t, s.TryBeginAnalysis())
	assert.True(t, s.IsAnalyzing())
	assert.Equal(t, 0, s.Progress())
	assert.False(t, s.TryBeginAnalysis())

	s.SetAnalyzing(false)
	assert.True(t, s.TryBeginAnalysis())
}

func TestSetProgressClamps(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())

	s.SetProgress(150)
	assert.Equal(t, 100, s.Progress())
	s.SetProgress(-3)
	assert.Equal(t, 0, s.Progress())
}

func TestSubscribeReceivesEvents(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	events, cancel := s.Subscribe(4)
	defer cancel()

	s.AddReading(reading("a", model.KindPalm, model.StatusCompleted, 90))
	s.SetProgress(10)

	select {
	case ev := <-events:
		assert.Equal(t, EventHistory, ev.Kind)
		assert.Len(t, ev.Snapshot.History, 1)
	case <-time.After(time.Second):
		t.Fatal("no history event")
	}
	select {
	case ev := <-events:
		assert.Equal(t, EventProgress, ev.Kind)
		assert.Equal(t, 10, ev.Snapshot.Progress)
	case <-time.After(time.Second):
		t.Fatal("no progress event")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	events, cancel := s.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 10; i++ {
			s.SetProgress(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("store blocked on slow subscriber")
	}
	assert.Len(t, events, 1)

	cancel()
	cancel()
	_, open := <-events
	assert.True(t, open)
	_, open = <-events
	assert.False(t, open)
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	s.AddReading(reading("a", model.KindPalm, model.StatusCompleted, 90))

	snap := s.Snapshot()
	*snap.History[0].Accuracy = 1
	snap.History[0].ID = "changed"

	h := s.History()
	assert.Equal(t, "a", h[0].ID)
	assert.Equal(t, 90.0, *h[0].Accuracy)
}

func TestLatestCompleted(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	s.AddReading(reading("old", model.KindPalm, model.StatusCompleted, 90))
	s.AddReading(reading("astro", model.KindAstrology, model.StatusCompleted, 80))
	s.AddReading(reading("failed", model.KindPalm, model.StatusFailed, 0))

	r, ok := s.LatestCompleted(model.KindPalm)
	require.True(t, ok)
	assert.Equal(t, "old", r.ID)

	_, ok = s.LatestCompleted(model.KindNumerology)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	s := NewReadings(&stubLister{}, zap.NewNop())
	assert.Equal(t, 0, s.Stats().Total)

	s.AddReading(reading("a", model.KindPalm, model.StatusCompleted, 90))
	s.AddReading(reading("b", model.KindAstrology, model.StatusCompleted, 80))
	s.AddReading(reading("c", model.KindAstrology, model.StatusCompleted, 95))
	s.AddReading(reading("d", model.KindPalm, model.StatusFailed, 0))

	st := s.Stats()
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 3, st.Completed)
	assert.Equal(t, 2, st.ByKind[model.KindAstrology])
	assert.Equal(t, 88.3, st.MeanAccuracy)
	assert.Equal(t, 90.0, st.MedianAccuracy)
}
