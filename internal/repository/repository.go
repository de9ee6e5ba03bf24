// Package repository содержит хранилища пользователей и сохранённых чтений dev-сервера.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mmeshcher/palmastro/internal/model"
)

var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим адресом.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrReadingExists возвращается, если чтение из того же источника уже сохранено.
	ErrReadingExists = errors.New("reading from this source is already saved")
)

// StoredUser хранит пользователя вместе с хэшем пароля.
type StoredUser struct {
	User         model.User
	PasswordHash []byte
}

// MemoryRepository хранит данные в памяти процесса.
type MemoryRepository struct {
	mu       sync.RWMutex
	users    map[string]StoredUser
	byEmail  map[string]string
	readings map[string][]model.Reading
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[string]StoredUser),
		byEmail:  make(map[string]string),
		readings: make(map[string][]model.Reading),
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error { return nil }

// CreateUser создаёт пользователя.
func (r *MemoryRepository) CreateUser(ctx context.Context, u model.User, passwordHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[u.Email]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
	}
	if _, ok := r.users[u.ID]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
	}
	r.users[u.ID] = StoredUser{User: u, PasswordHash: append([]byte(nil), passwordHash...)}
	r.byEmail[u.Email] = u.ID
	return nil
}

// GetUserByEmail возвращает пользователя по адресу.
func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*StoredUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := r.users[id]
	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*StoredUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// UpdatePlan меняет тарифный план пользователя.
func (r *MemoryRepository) UpdatePlan(ctx context.Context, userID, plan string, premium bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	su, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	su.User.Plan = plan
	su.User.IsPremium = premium
	r.users[userID] = su
	return nil
}

// SaveReading сохраняет чтение пользователя.
func (r *MemoryRepository) SaveReading(ctx context.Context, reading model.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[reading.UserID]; !ok {
		return ErrUserNotFound
	}
	for _, existing := range r.readings[reading.UserID] {
		if reading.SourceID != "" && existing.SourceID == reading.SourceID {
			return fmt.Errorf("%w: %s", ErrReadingExists, reading.SourceID)
		}
	}
	r.readings[reading.UserID] = append(r.readings[reading.UserID], reading.Clone())
	return nil
}

// ListReadings возвращает страницу чтений пользователя от новых к старым и их общее число.
func (r *MemoryRepository) ListReadings(ctx context.Context, userID string, limit, offset int) ([]model.Reading, int, error) {
	r.mu.RLock()
	saved := r.readings[userID]
	all := make([]model.Reading, len(saved))
	for i, reading := range saved {
		all[len(saved)-1-i] = reading.Clone()
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	offset = max(offset, 0)
	if offset >= total {
		return []model.Reading{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// CountReadings возвращает число сохранённых чтений пользователя.
func (r *MemoryRepository) CountReadings(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.readings[userID]), nil
}
