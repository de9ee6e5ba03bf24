package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/palmastro/internal/config"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/storage"
)

func TestSessionTokens(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewSession(store)

	assert.False(t, s.Authenticated())

	require.NoError(t, s.SetTokens(model.Tokens{Access: "a1", Refresh: "r1"}))
	assert.True(t, s.Authenticated())

	raw, ok, err := store.Get(config.KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a1", raw)

	require.NoError(t, s.SetTokens(model.Tokens{Access: "a2"}))
	access, err := s.AccessToken()
	require.NoError(t, err)
	refresh, err := s.RefreshToken()
	require.NoError(t, err)
	assert.Equal(t, "a2", access)
	assert.Equal(t, "r1", refresh)
}

func TestSessionUserAndClear(t *testing.T) {
	s := NewSession(storage.NewMemoryStore())

	_, ok, err := s.User()
	require.NoError(t, err)
	assert.False(t, ok)

	mock := true
	require.NoError(t, s.SaveSettings(Settings{UseMockAPI: &mock, Language: "en"}))
	require.NoError(t, s.SetTokens(model.Tokens{Access: "a", Refresh: "r"}))
	require.NoError(t, s.SaveUser(model.User{ID: "u1", Email: "demo@palmastro.app"}))

	u, ok, err := s.User()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "demo@palmastro.app", u.Email)

	require.NoError(t, s.Clear())

	assert.False(t, s.Authenticated())
	_, ok, err = s.User()
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := s.Settings()
	require.NoError(t, err)
	require.NotNil(t, st.UseMockAPI)
	assert.True(t, *st.UseMockAPI)
	assert.Equal(t, "en", st.Language)
}

func TestSessionMockReadingsSurviveClear(t *testing.T) {
	st := storage.NewMemoryStore()
	s := NewSession(st)

	readings, err := s.MockReadings()
	require.NoError(t, err)
	assert.Empty(t, readings)

	acc := 91.0
	saved := []model.Reading{{ID: "r1", Kind: model.KindAstrology, Status: model.StatusCompleted, Accuracy: &acc}}
	require.NoError(t, s.SaveMockReadings(saved))
	require.NoError(t, s.Clear())

	readings, err = NewSession(st).MockReadings()
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "r1", readings[0].ID)
	require.NotNil(t, readings[0].Accuracy)
	assert.InDelta(t, 91, *readings[0].Accuracy, 0.001)
}
