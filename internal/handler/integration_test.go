package handler_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/apiclient"
	"github.com/mmeshcher/palmastro/internal/apierr"
	"github.com/mmeshcher/palmastro/internal/credentials"
	"github.com/mmeshcher/palmastro/internal/handler"
	"github.com/mmeshcher/palmastro/internal/middleware"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/orchestrator"
	"github.com/mmeshcher/palmastro/internal/repository"
	"github.com/mmeshcher/palmastro/internal/service"
	"github.com/mmeshcher/palmastro/internal/storage"
	"github.com/mmeshcher/palmastro/internal/store"
)

type devServer struct {
	url          string
	statusChecks atomic.Int32
	resultCalls  atomic.Int32
}

func startDevServer(t *testing.T, script ...model.GenerationStatus) *devServer {
	t.Helper()

	logger := zap.NewNop()
	svc := service.NewService(repository.NewMemoryRepository(), logger, service.WithStatusScript(script...))
	h := handler.NewHandler(svc, logger, middleware.NewAuthMiddleware("integration-secret"))
	router := h.SetupRouter()

	ds := &devServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/status/"):
			ds.statusChecks.Add(1)
		case strings.HasSuffix(r.URL.Path, "/result/"):
			ds.resultCalls.Add(1)
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	ds.url = srv.URL + handler.APIPrefix
	return ds
}

type liveClient struct {
	api      *apiclient.Live
	creds    *credentials.Session
	readings *store.Readings
	orch     *orchestrator.Orchestrator
}

func newLiveClient(t *testing.T, baseURL string) *liveClient {
	t.Helper()

	logger := zap.NewNop()
	creds := credentials.NewSession(storage.NewMemoryStore())
	api, err := apiclient.NewLive(baseURL, creds, logger, apiclient.WithRetry(1, 0), apiclient.WithHTTPTimeout(5*time.Second))
	require.NoError(t, err)

	readings := store.NewReadings(api, logger)
	orch := orchestrator.New(api, readings, orchestrator.Config{
		PollInterval: time.Millisecond,
		PollAttempts: 10,
		ProgressTick: 5 * time.Millisecond,
	}, logger)

	return &liveClient{api: api, creds: creds, readings: readings, orch: orch}
}

func palmImage(t *testing.T) model.Image {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	return model.Image{Name: "palm.png", ContentType: "image/png", Data: buf.Bytes()}
}

func TestLiveClientAgainstDevServer(t *testing.T) {
	ds := startDevServer(t,
		model.GenerationPending,
		model.GenerationPending,
		model.GenerationProcessing,
		model.GenerationProcessing,
		model.GenerationCompleted,
	)
	c := newLiveClient(t, ds.url)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	login, err := c.api.Login(ctx, "ada@palmastro.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ada@palmastro.com", login.User.Email)
	assert.True(t, c.creds.Authenticated())

	palm, err := c.orch.AnalyzePalm(ctx, palmImage(t))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, palm.Status)
	require.NotNil(t, palm.Accuracy)
	assert.InDelta(t, 96, *palm.Accuracy, 0.001)

	astro, err := c.orch.RunAstrology(ctx, model.AstrologyIntake{
		Personal:    model.PersonalInfo{Name: "Ada"},
		Birth:       model.BirthDetails{Date: "1990-08-01", Time: "14:30", Place: "London"},
		Preferences: model.Preferences{FocusAreas: []string{"career"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, astro.Status)
	assert.Equal(t, palm.ID, astro.PalmReferenceID)
	require.NotNil(t, astro.Accuracy)
	assert.InDelta(t, 91, *astro.Accuracy, 0.001)

	// Пять статусов, последний COMPLETED: ровно пять проверок и один запрос результата.
	assert.EqualValues(t, 5, ds.statusChecks.Load())
	assert.EqualValues(t, 1, ds.resultCalls.Load())

	page, err := c.api.ListReadings(ctx, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, page.Count)
	assert.Equal(t, model.KindAstrology, page.Results[0].Kind)
	assert.Equal(t, astro.SourceID, page.Results[0].SourceID)
	assert.Equal(t, palm.ID, page.Results[0].PalmReferenceID)
	assert.Equal(t, model.KindPalm, page.Results[1].Kind)

	profile, err := c.api.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.TotalReadings)
	assert.InDelta(t, 93.5, profile.AccuracyScore, 0.001)

	require.NoError(t, c.readings.LoadReadings(ctx, 0))
	assert.Len(t, c.readings.History(), 2)
}

func TestLiveNumerologyFailureStopsBeforeFetch(t *testing.T) {
	ds := startDevServer(t, model.GenerationProcessing, model.GenerationFailed)
	c := newLiveClient(t, ds.url)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := c.orch.RunNumerology(ctx, model.NumerologyRequest{FullName: "Ada Lovelace", BirthDate: "1815-12-10"})
	require.ErrorIs(t, err, orchestrator.ErrGenerationFailed)

	assert.EqualValues(t, 2, ds.statusChecks.Load())
	assert.EqualValues(t, 0, ds.resultCalls.Load())

	current, ok := c.readings.Current()
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, current.Status)
}

func TestLiveSaveWithoutLoginIsBenign(t *testing.T) {
	ds := startDevServer(t, model.GenerationCompleted)
	c := newLiveClient(t, ds.url)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r, err := c.orch.RunNumerology(ctx, model.NumerologyRequest{FullName: "Ada Lovelace", BirthDate: "1815-12-10"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, r.Status)
	assert.Len(t, c.readings.History(), 1)
}

func TestLiveRefreshesExpiredAccessToken(t *testing.T) {
	ds := startDevServer(t, model.GenerationCompleted)
	c := newLiveClient(t, ds.url)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := c.api.Login(ctx, "ada@palmastro.com", "secret1")
	require.NoError(t, err)

	// Подменяем токен доступа на недействительный: сервер ответит 401, клиент обновит токен.
	require.NoError(t, c.creds.SetAccessToken("access.stale.0.bad"))

	u, err := c.api.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada@palmastro.com", u.Email)

	token, err := c.creds.AccessToken()
	require.NoError(t, err)
	assert.NotEqual(t, "access.stale.0.bad", token)
}

func TestLiveSignupUpgradeAndPredictions(t *testing.T) {
	ds := startDevServer(t, model.GenerationCompleted)
	c := newLiveClient(t, ds.url)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	form := model.SignupRequest{
		FullName:        "Ada Lovelace",
		Email:           "ada@palmastro.com",
		Password:        "analytical1",
		ConfirmPassword: "analytical1",
		AcceptedTerms:   true,
	}
	res, err := c.api.Signup(ctx, form)
	require.NoError(t, err)
	assert.Equal(t, "Ada", res.Data.User.FirstName)
	assert.True(t, c.creds.Authenticated())

	_, err = c.api.Signup(ctx, form)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	live, err := c.api.DashboardRealtime(ctx)
	require.NoError(t, err)
	assert.False(t, live.HasUpdates)

	_, err = c.orch.AnalyzePalm(ctx, palmImage(t))
	require.NoError(t, err)

	preds, err := c.api.Predictions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, preds.Count)
	assert.Equal(t, "Health", preds.Results[0].Area)

	live, err = c.api.DashboardRealtime(ctx)
	require.NoError(t, err)
	assert.True(t, live.HasUpdates)
	assert.Equal(t, 1, live.ReadingsCount)

	_, err = c.api.UpgradePlan(ctx, "golden_goose")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	up, err := c.api.UpgradePlan(ctx, "mystic_master")
	require.NoError(t, err)
	assert.Equal(t, "Successfully upgraded to Mystic Master", up.Message)

	profile, err := c.api.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mystic_master", profile.Plan)
	assert.True(t, profile.IsPremium)
}
