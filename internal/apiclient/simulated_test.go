package apiclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/palmastro/internal/apierr"
	"github.com/mmeshcher/palmastro/internal/credentials"
	"github.com/mmeshcher/palmastro/internal/fixtures"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/storage"
)

func TestSimulatedStatusScript(t *testing.T) {
	sim := NewSimulated(credentials.NewSession(storage.NewMemoryStore()),
		WithDelay(0, 0),
		WithStatusScript(model.GenerationPending, model.GenerationPending, model.GenerationCompleted),
	)
	ctx := context.Background()

	h, err := sim.SubmitPersonalInfo(ctx, model.PersonalInfo{Name: "Ada"})
	require.NoError(t, err)
	require.True(t, sim.Owns(h.ID))
	require.True(t, IsSimulatedURL(h.StatusURL))

	gen, err := sim.GenerateReading(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.StatusURL, gen.StatusURL)

	var seen []model.GenerationStatus
	for i := 0; i < 4; i++ {
		rep, err := sim.CheckStatus(ctx, gen.StatusURL)
		require.NoError(t, err)
		seen = append(seen, rep.Status)
	}
	assert.Equal(t, []model.GenerationStatus{
		model.GenerationPending, model.GenerationPending, model.GenerationCompleted, model.GenerationCompleted,
	}, seen)
}

func TestSimulatedAstrologyResultUsesIntake(t *testing.T) {
	sim := NewSimulated(credentials.NewSession(storage.NewMemoryStore()), WithDelay(0, 0))
	ctx := context.Background()

	h, err := sim.SubmitPersonalInfo(ctx, model.PersonalInfo{Name: "Ada"})
	require.NoError(t, err)
	require.NoError(t, sim.SubmitBirthDetails(ctx, h.ID, model.BirthDetails{Date: "1990-08-01", Time: "07:30", Place: "Rome"}))
	require.NoError(t, sim.SubmitPreferences(ctx, h.ID, model.Preferences{FocusAreas: []string{"love"}}))

	raw, err := sim.FetchResult(ctx, h.ResultURL)
	require.NoError(t, err)

	var res fixtures.AstrologyResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "Leo", res.SunSign)
	assert.Equal(t, "Cancer", res.MoonSign)
	assert.Equal(t, []string{"love"}, res.FocusAreas)
}

func TestSimulatedNumerology(t *testing.T) {
	sim := NewSimulated(credentials.NewSession(storage.NewMemoryStore()), WithDelay(0, 0))
	ctx := context.Background()

	h, err := sim.StartNumerology(ctx, model.NumerologyRequest{FullName: "Ada Lovelace", BirthDate: "1815-12-10"})
	require.NoError(t, err)
	assert.Contains(t, h.ResultURL, "numerology")

	raw, err := sim.FetchResult(ctx, h.ResultURL)
	require.NoError(t, err)

	var res fixtures.NumerologyResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, 1, res.LifePath)
	assert.Equal(t, "ADALOVELACE", res.NormalizedName)
}

func TestSimulatedUnknownStatusURLIsCompleted(t *testing.T) {
	sim := NewSimulated(credentials.NewSession(storage.NewMemoryStore()), WithDelay(0, 0))

	rep, err := sim.CheckStatus(context.Background(), "http://example.com/astrology/x/status/")
	require.NoError(t, err)
	assert.Equal(t, model.GenerationCompleted, rep.Status)
}

func TestSimulatedDelayBounds(t *testing.T) {
	sim := NewSimulated(credentials.NewSession(storage.NewMemoryStore()), WithDelay(5*time.Millisecond, 20*time.Millisecond))

	start := time.Now()
	_, err := sim.AnalyzeImage(context.Background(), model.Image{Data: []byte{1}})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestSimulatedDelayHonorsContext(t *testing.T) {
	sim := NewSimulated(credentials.NewSession(storage.NewMemoryStore()), WithDelay(time.Hour, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Dashboard(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedSaveAndList(t *testing.T) {
	creds := credentials.NewSession(storage.NewMemoryStore())
	sim := NewSimulated(creds, WithDelay(0, 0))
	ctx := context.Background()

	_, err := sim.Login(ctx, "", "")
	require.NoError(t, err)

	acc := 150.0
	_, err = sim.SaveReading(ctx, model.SaveReadingRequest{Kind: model.KindNumerology, Result: json.RawMessage(`{}`), Accuracy: &acc})
	require.NoError(t, err)

	page, err := sim.ListReadings(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	require.Len(t, page.Results, 2)
	assert.Equal(t, model.KindNumerology, page.Results[0].Kind)
	require.NotNil(t, page.Results[0].Accuracy)
	assert.Equal(t, 100.0, *page.Results[0].Accuracy)

	page, err = sim.ListReadings(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, page.Results)
}

func TestSimulatedListNegativeOffset(t *testing.T) {
	sim := NewSimulated(credentials.NewSession(storage.NewMemoryStore()), WithDelay(0, 0))

	page, err := sim.ListReadings(context.Background(), 1, -3)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "reading_1", page.Results[0].ID)
}

func TestSimulatedSavesOutliveClient(t *testing.T) {
	st := storage.NewMemoryStore()
	ctx := context.Background()

	first := NewSimulated(credentials.NewSession(st), WithDelay(0, 0))
	_, err := first.Login(ctx, "demo@palmastro.com", "secret1")
	require.NoError(t, err)
	saved, err := first.SaveReading(ctx, model.SaveReadingRequest{Kind: model.KindPalm, Result: fixtures.PalmJSON()})
	require.NoError(t, err)

	second := NewSimulated(credentials.NewSession(st), WithDelay(0, 0))
	page, err := second.ListReadings(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Equal(t, saved.Data.ID, page.Results[0].ID)

	preds, err := second.Predictions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, preds.Count)
	assert.Equal(t, "Health", preds.Results[0].Area)

	live, err := second.DashboardRealtime(ctx)
	require.NoError(t, err)
	assert.True(t, live.HasUpdates)
	assert.Equal(t, 3, live.ReadingsCount)
	require.NotNil(t, live.LastUpdate)
	assert.Equal(t, page.Results[0].UpdatedAt, *live.LastUpdate)
}

func TestSimulatedSignup(t *testing.T) {
	valid := model.SignupRequest{
		FullName:        "Ada Lovelace",
		Email:           "ada@palmastro.com",
		Password:        "analytical1",
		ConfirmPassword: "analytical1",
		AcceptedTerms:   true,
	}

	tests := []struct {
		name   string
		mutate func(*model.SignupRequest)
	}{
		{name: "passwords differ", mutate: func(r *model.SignupRequest) { r.ConfirmPassword = "analytical2" }},
		{name: "terms not accepted", mutate: func(r *model.SignupRequest) { r.AcceptedTerms = false }},
		{name: "short password", mutate: func(r *model.SignupRequest) { r.Password, r.ConfirmPassword = "short", "short" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := credentials.NewSession(storage.NewMemoryStore())
			sim := NewSimulated(creds, WithDelay(0, 0))
			req := valid
			tt.mutate(&req)

			_, err := sim.Signup(context.Background(), req)
			kind, ok := apierr.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, apierr.KindInvalidInput, kind)
			assert.False(t, creds.Authenticated())
		})
	}

	creds := credentials.NewSession(storage.NewMemoryStore())
	sim := NewSimulated(creds, WithDelay(0, 0))
	res, err := sim.Signup(context.Background(), valid)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Ada", res.Data.User.FirstName)
	assert.Equal(t, "Lovelace", res.Data.User.LastName)
	assert.Equal(t, fixtures.FreePlan, res.Data.User.Plan)
	assert.True(t, creds.Authenticated())
}

func TestSimulatedUpgradePlan(t *testing.T) {
	creds := credentials.NewSession(storage.NewMemoryStore())
	sim := NewSimulated(creds, WithDelay(0, 0))
	ctx := context.Background()

	_, err := sim.UpgradePlan(ctx, "mystic_master")
	require.ErrorIs(t, err, apierr.ErrNotAuthenticated)

	_, err = sim.Login(ctx, "demo@palmastro.com", "secret1")
	require.NoError(t, err)

	_, err = sim.UpgradePlan(ctx, "golden_goose")
	kind, _ := apierr.KindOf(err)
	assert.Equal(t, apierr.KindInvalidInput, kind)

	res, err := sim.UpgradePlan(ctx, "mystic_master")
	require.NoError(t, err)
	assert.Equal(t, "Successfully upgraded to Mystic Master", res.Message)
	assert.Contains(t, res.Plan.Features, "Weekly live readings")

	u, ok, err := creds.User()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mystic_master", u.Plan)
	assert.True(t, u.IsPremium)
}
