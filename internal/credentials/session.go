// Package credentials управляет токенами и снимком пользователя поверх клиентского хранилища.
package credentials

import (
	"encoding/json"
	"fmt"

	"github.com/mmeshcher/palmastro/internal/config"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/storage"
)

// Settings содержит пользовательские настройки клиента.
type Settings struct {
	UseMockAPI *bool  `json:"use_mock_api,omitempty"`
	Language   string `json:"language,omitempty"`
}

// Session предоставляет типизированный доступ к учётным данным в хранилище.
// Слот единственный: последняя запись побеждает.
type Session struct {
	store storage.Store
}

// NewSession создаёт сессию поверх хранилища.
func NewSession(store storage.Store) *Session {
	return &Session{store: store}
}

// AccessToken возвращает токен доступа или пустую строку, если его нет.
func (s *Session) AccessToken() (string, error) {
	v, _, err := s.store.Get(config.KeyAuthToken)
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	return v, nil
}

// RefreshToken возвращает токен обновления или пустую строку, если его нет.
func (s *Session) RefreshToken() (string, error) {
	v, _, err := s.store.Get(config.KeyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	return v, nil
}

// Authenticated сообщает, сохранён ли токен доступа.
func (s *Session) Authenticated() bool {
	tok, err := s.AccessToken()
	return err == nil && tok != ""
}

// SetTokens сохраняет пару токенов. Пустой refresh-токен не затирает сохранённый.
func (s *Session) SetTokens(t model.Tokens) error {
	if err := s.SetAccessToken(t.Access); err != nil {
		return err
	}
	if t.Refresh == "" {
		return nil
	}
	if err := s.store.Set(config.KeyRefreshToken, t.Refresh); err != nil {
		return fmt.Errorf("write refresh token: %w", err)
	}
	return nil
}

// SetAccessToken сохраняет токен доступа.
func (s *Session) SetAccessToken(token string) error {
	if err := s.store.Set(config.KeyAuthToken, token); err != nil {
		return fmt.Errorf("write access token: %w", err)
	}
	return nil
}

// SaveUser сохраняет снимок пользователя.
func (s *Session) SaveUser(u model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.store.Set(config.KeyUserData, string(data)); err != nil {
		return fmt.Errorf("write user: %w", err)
	}
	return nil
}

// User возвращает сохранённый снимок пользователя.
func (s *Session) User() (*model.User, bool, error) {
	raw, ok, err := s.store.Get(config.KeyUserData)
	if err != nil {
		return nil, false, fmt.Errorf("read user: %w", err)
	}
	if !ok || raw == "" {
		return nil, false, nil
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, false, fmt.Errorf("decode user: %w", err)
	}
	return &u, true, nil
}

// SaveSettings сохраняет настройки клиента.
func (s *Session) SaveSettings(st Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.store.Set(config.KeySettings, string(data)); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Settings возвращает сохранённые настройки или нулевое значение.
func (s *Session) Settings() (Settings, error) {
	var st Settings
	raw, ok, err := s.store.Get(config.KeySettings)
	if err != nil {
		return st, fmt.Errorf("read settings: %w", err)
	}
	if !ok || raw == "" {
		return st, nil
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return st, fmt.Errorf("decode settings: %w", err)
	}
	return st, nil
}

// SaveMockReadings сохраняет чтения, записанные в демонстрационном режиме.
func (s *Session) SaveMockReadings(readings []model.Reading) error {
	data, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("encode mock readings: %w", err)
	}
	if err := s.store.Set(config.KeyMockReadings, string(data)); err != nil {
		return fmt.Errorf("write mock readings: %w", err)
	}
	return nil
}

// MockReadings возвращает чтения демонстрационного режима, новые первыми.
func (s *Session) MockReadings() ([]model.Reading, error) {
	raw, ok, err := s.store.Get(config.KeyMockReadings)
	if err != nil {
		return nil, fmt.Errorf("read mock readings: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var readings []model.Reading
	if err := json.Unmarshal([]byte(raw), &readings); err != nil {
		return nil, fmt.Errorf("decode mock readings: %w", err)
	}
	return readings, nil
}

// Clear удаляет токены и снимок пользователя. Настройки и демонстрационные чтения сохраняются.
func (s *Session) Clear() error {
	if err := s.store.Clear(config.KeyAuthToken, config.KeyRefreshToken, config.KeyUserData); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
