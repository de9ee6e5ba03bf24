package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/palmastro/internal/config"
	"github.com/mmeshcher/palmastro/internal/credentials"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/storage"
)

func testConfig() *config.ClientConfig {
	return &config.ClientConfig{
		BaseURL:             "http://127.0.0.1:1/api/v1",
		UseMockAPI:          true,
		HTTPTimeout:         time.Second,
		RetryAttempts:       1,
		PollInterval:        0,
		PollAttempts:        10,
		PollExhaustedPolicy: config.PollExhaustedFetch,
		ProgressTick:        10 * time.Millisecond,
	}
}

func run(t *testing.T, st storage.Store, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCmd(&out, WithStore(st), WithConfig(testConfig()))
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--env-file="))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestLoginPersistsTokenAndLogoutClears(t *testing.T) {
	st := storage.NewMemoryStore()

	out, err := run(t, st, "login", "-e", "ada@palmastro.com", "-p", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as")
	assert.Contains(t, out, "ada@palmastro.com")

	creds := credentials.NewSession(st)
	assert.True(t, creds.Authenticated())

	out, err = run(t, st, "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "<ada@palmastro.com>")

	_, err = run(t, st, "logout")
	require.NoError(t, err)
	assert.False(t, creds.Authenticated())

	_, err = run(t, st, "profile")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginValidation(t *testing.T) {
	_, err := run(t, storage.NewMemoryStore(), "login", "-e", "not-an-email", "-p", "x")
	require.Error(t, err)
}

func writePalmImage(t *testing.T) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	path := filepath.Join(t.TempDir(), "palm.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestPalmCommand(t *testing.T) {
	out, err := run(t, storage.NewMemoryStore(), "palm", writePalmImage(t), "--json")
	require.NoError(t, err)

	var r model.Reading
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, model.KindPalm, r.Kind)
	assert.Equal(t, model.StatusCompleted, r.Status)
	require.NotNil(t, r.Accuracy)
	assert.InDelta(t, 96, *r.Accuracy, 0.001)
}

func TestPalmCommandRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	_, err := run(t, storage.NewMemoryStore(), "palm", path)
	require.Error(t, err)
}

func TestNumerologyCommand(t *testing.T) {
	out, err := run(t, storage.NewMemoryStore(), "numerology", "--name", "Ada Lovelace", "--birth-date", "1815-12-10", "--json")
	require.NoError(t, err)

	var r model.Reading
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, model.KindNumerology, r.Kind)
	assert.Equal(t, model.StatusCompleted, r.Status)
	assert.NotEmpty(t, r.Result)
}

func TestAstrologyCommand(t *testing.T) {
	for _, quick := range []bool{false, true} {
		args := []string{"astrology", "--name", "Ada", "--birth-date", "1990-08-01", "--birth-time", "14:30", "--birth-place", "London", "--focus", "career,love"}
		if quick {
			args = append(args, "--quick")
		}

		out, err := run(t, storage.NewMemoryStore(), args...)
		require.NoError(t, err, "quick=%v", quick)
		assert.Contains(t, out, "Astrology reading")
		assert.Contains(t, out, "sun sign: Leo")
	}
}

func TestHistoryRequiresLogin(t *testing.T) {
	_, err := run(t, storage.NewMemoryStore(), "history")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestSaveCommand(t *testing.T) {
	st := storage.NewMemoryStore()
	acc := 91.0
	reading := model.Reading{
		ID:       "r1",
		Kind:     model.KindAstrology,
		Status:   model.StatusCompleted,
		Accuracy: &acc,
		Result:   json.RawMessage(`{"sun_sign":"Leo"}`),
	}
	data, err := json.Marshal(reading)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "reading.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = run(t, st, "save", path)
	assert.ErrorIs(t, err, errNotLoggedIn)

	_, err = run(t, st, "login", "-e", "ada@palmastro.com", "-p", "secret1")
	require.NoError(t, err)

	out, err := run(t, st, "save", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved astrology_reading")

	out, err = run(t, st, "history", "--json")
	require.NoError(t, err)
	var listed struct {
		Readings []model.Reading `json:"readings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Readings, 3)
	assert.Equal(t, model.KindAstrology, listed.Readings[0].Kind)
	assert.Equal(t, "r1", listed.Readings[0].SourceID)
	require.NotNil(t, listed.Readings[0].Accuracy)
	assert.InDelta(t, 91, *listed.Readings[0].Accuracy, 0.001)
}

func TestSettingsOverrideMockModeWithFallback(t *testing.T) {
	st := storage.NewMemoryStore()

	out, err := run(t, st, "settings", "--use-mock=false", "--language", "en")
	require.NoError(t, err)
	assert.Contains(t, out, "mock mode: false")

	saved, err := credentials.NewSession(st).Settings()
	require.NoError(t, err)
	require.NotNil(t, saved.UseMockAPI)
	assert.False(t, *saved.UseMockAPI)
	assert.Equal(t, "en", saved.Language)

	// Бэкенд недоступен: ответ подменяется симулированным.
	out, err = run(t, st, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "Total readings:")
}

func TestSignupCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "passwords differ", args: []string{"--confirm", "analytical2", "--accept-terms"}},
		{name: "terms not accepted", args: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := storage.NewMemoryStore()
			args := append([]string{"signup", "--name", "Ada Lovelace", "-e", "ada@palmastro.com", "-p", "analytical1"}, tt.args...)

			_, err := run(t, st, args...)
			require.Error(t, err)
			assert.False(t, credentials.NewSession(st).Authenticated())
		})
	}

	st := storage.NewMemoryStore()
	out, err := run(t, st, "signup", "--name", "Ada Lovelace", "-e", "ada@palmastro.com", "-p", "analytical1", "--accept-terms")
	require.NoError(t, err)
	assert.Contains(t, out, "Account created for Ada Lovelace")
	assert.True(t, credentials.NewSession(st).Authenticated())
}

func TestPlanUpgradeCommand(t *testing.T) {
	st := storage.NewMemoryStore()

	_, err := run(t, st, "plan", "upgrade", "mystic_master")
	assert.ErrorIs(t, err, errNotLoggedIn)

	_, err = run(t, st, "signup", "--name", "Ada", "-e", "ada@palmastro.com", "-p", "analytical1", "--accept-terms")
	require.NoError(t, err)

	_, err = run(t, st, "plan", "upgrade", "golden_goose")
	require.Error(t, err)

	out, err := run(t, st, "plan", "upgrade", "mystic_master")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully upgraded to Mystic Master")

	out, err = run(t, st, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "* mystic_master")

	u, ok, err := credentials.NewSession(st).User()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, u.IsPremium)
}

func TestPredictionsAndRealtimeCommands(t *testing.T) {
	st := storage.NewMemoryStore()

	_, err := run(t, st, "login", "-e", "ada@palmastro.com", "-p", "secret1")
	require.NoError(t, err)

	out, err := run(t, st, "predictions")
	require.NoError(t, err)
	assert.Contains(t, out, "No predictions yet.")

	_, err = run(t, st, "palm", writePalmImage(t))
	require.NoError(t, err)

	out, err = run(t, st, "predictions")
	require.NoError(t, err)
	assert.Contains(t, out, "Health")
	assert.Contains(t, out, "94%")

	out, err = run(t, st, "dashboard", "--realtime")
	require.NoError(t, err)
	assert.Contains(t, out, "Readings:     3")
	assert.Contains(t, out, "Has updates:  true")
}
