// Package service реализует логику dev-сервера PalmAstro: вход, анкеты, генерацию и историю чтений.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/derive"
	"github.com/mmeshcher/palmastro/internal/fixtures"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/repository"
	"github.com/mmeshcher/palmastro/internal/validation"
)

var (
	// ErrInvalidCredentials возвращается при неверном пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidReading возвращается при попытке сохранить некорректное чтение.
	ErrInvalidReading = errors.New("invalid reading")
	// ErrPlanRequired возвращается, если план не указан.
	ErrPlanRequired = errors.New("plan_name is required")
	// ErrUnknownPlan возвращается для плана, которого нет в каталоге.
	ErrUnknownPlan = errors.New("plan not found")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u model.User, passwordHash []byte) error
	GetUserByEmail(ctx context.Context, email string) (*repository.StoredUser, error)
	GetUserByID(ctx context.Context, id string) (*repository.StoredUser, error)
	UpdatePlan(ctx context.Context, userID, plan string, premium bool) error
	SaveReading(ctx context.Context, reading model.Reading) error
	ListReadings(ctx context.Context, userID string, limit, offset int) ([]model.Reading, int, error)
}

// Option настраивает Service.
type Option func(*Service)

// WithStatusScript задаёт последовательность статусов, которую проходит каждая генерация.
func WithStatusScript(script ...model.GenerationStatus) Option {
	return func(s *Service) {
		if len(script) > 0 {
			s.script = append([]model.GenerationStatus(nil), script...)
		}
	}
}

// WithSessionTTL задаёт время жизни незавершённых сессий.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service содержит логику dev-сервера.
type Service struct {
	repo       Repository
	logger     *zap.Logger
	now        func() time.Time
	script     []model.GenerationStatus
	sessionTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService создаёт сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:       repo,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		script:     []model.GenerationStatus{model.GenerationPending, model.GenerationProcessing, model.GenerationCompleted},
		sessionTTL: time.Hour,
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(strings.ToLower(email) + ":" + password))
	return sum[:]
}

// Login аутентифицирует пользователя. При первом входе пользователь создаётся.
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)
	hashed := hashPassword(email, password)

	stored, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		u := fixtures.MockUser(email)
		u.TotalReadings = 0
		u.MemberSince = s.now()
		if err := s.repo.CreateUser(ctx, u, hashed); err != nil {
			if !errors.Is(err, repository.ErrUserExists) {
				return nil, fmt.Errorf("create user: %w", err)
			}
			return s.Login(ctx, email, password)
		}
		s.logger.Info("user registered on first login", zap.String("user_id", u.ID))
		return &u, nil
	}
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(hashed, stored.PasswordHash) != 1 {
		return nil, ErrInvalidCredentials
	}
	return s.withStats(ctx, stored.User)
}

// Signup регистрирует пользователя на бесплатном плане.
// Повторная регистрация того же адреса возвращает repository.ErrUserExists.
func (s *Service) Signup(ctx context.Context, req model.SignupRequest) (*model.User, error) {
	if err := validation.ValidateSignup(req); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.Email)
	first, last, _ := strings.Cut(strings.TrimSpace(req.FullName), " ")
	username, _, _ := strings.Cut(email, "@")
	u := model.User{
		ID:          uuid.NewString(),
		Email:       email,
		Username:    username,
		FirstName:   first,
		LastName:    strings.TrimSpace(last),
		Plan:        fixtures.FreePlan,
		MemberSince: s.now(),
	}
	if err := s.repo.CreateUser(ctx, u, hashPassword(email, req.Password)); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up",
		zap.String("user_id", u.ID),
		zap.Bool("newsletter", req.SubscribeNewsletter),
	)
	return &u, nil
}

// UpgradePlan переводит пользователя на план из каталога.
func (s *Service) UpgradePlan(ctx context.Context, userID, planName string) (*model.PlanUpgrade, error) {
	planName = strings.TrimSpace(planName)
	if planName == "" {
		return nil, ErrPlanRequired
	}
	plan, ok := fixtures.FindPlan(planName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planName)
	}

	if err := s.repo.UpdatePlan(ctx, userID, plan.Name, fixtures.IsPremiumPlan(plan.Name)); err != nil {
		return nil, err
	}

	s.logger.Info("plan upgraded", zap.String("user_id", userID), zap.String("plan", plan.Name))
	return &model.PlanUpgrade{
		Success: true,
		Message: "Successfully upgraded to " + plan.DisplayName,
		Plan:    plan,
	}, nil
}

// Predictions собирает предсказания из сохранённых чтений пользователя.
func (s *Service) Predictions(ctx context.Context, userID string) (*model.PredictionList, error) {
	readings, _, err := s.repo.ListReadings(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}
	results := derive.Predictions(readings, derive.MaxPredictions)
	return &model.PredictionList{Count: len(results), Results: results}, nil
}

// DashboardRealtime сообщает число сохранённых чтений и время последнего изменения.
// Для анонимного запроса история пуста.
func (s *Service) DashboardRealtime(ctx context.Context, userID string) (*model.DashboardRealtime, error) {
	out := &model.DashboardRealtime{Timestamp: s.now()}
	if userID == "" {
		return out, nil
	}

	readings, total, err := s.repo.ListReadings(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}
	out.ReadingsCount = total
	out.HasUpdates = total > 0
	for _, r := range readings {
		if out.LastUpdate == nil || r.UpdatedAt.After(*out.LastUpdate) {
			t := r.UpdatedAt
			out.LastUpdate = &t
		}
	}
	return out, nil
}

// Profile возвращает профиль пользователя со статистикой.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	stored, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.withStats(ctx, stored.User)
}

func (s *Service) withStats(ctx context.Context, u model.User) (*model.User, error) {
	readings, total, err := s.repo.ListReadings(ctx, u.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	u.TotalReadings = total
	u.AccuracyScore = averageAccuracy(readings)
	return &u, nil
}

func averageAccuracy(readings []model.Reading) float64 {
	var sum float64
	var n int
	for _, r := range readings {
		if r.Accuracy != nil {
			sum += *r.Accuracy
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*10) / 10
}

// Dashboard возвращает сводку. Для вошедшего пользователя недавние чтения берутся из истории.
func (s *Service) Dashboard(ctx context.Context, userID string) (*model.Dashboard, error) {
	d := fixtures.Dashboard()
	if userID == "" {
		return &d, nil
	}

	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.repo.ListReadings(ctx, userID, 5, 0)
	if err != nil {
		return nil, err
	}
	d.RecentReadings = recent
	d.UserStats.TotalReadings = u.TotalReadings
	d.UserStats.AverageAccuracy = u.AccuracyScore
	d.UserStats.MemberSince = u.MemberSince
	return &d, nil
}

// Upload регистрирует загруженное изображение.
func (s *Service) Upload(img model.Image) model.UploadResult {
	id := uuid.NewString()
	return model.UploadResult{UploadID: id, ImageURL: "/media/palm_images/" + id + "/" + img.Name}
}

// AnalyzePalm возвращает результат анализа ладони.
func (s *Service) AnalyzePalm(img model.Image) model.AnalyzeResult {
	return model.AnalyzeResult{ReadingID: uuid.NewString(), Result: fixtures.PalmJSON()}
}

// CreateAstrology возвращает готовое астрологическое чтение без пошаговой анкеты.
func (s *Service) CreateAstrology(intake model.AstrologyIntake) (*model.Reading, error) {
	now := s.now()
	r := model.NewReading(uuid.NewString(), model.KindAstrology, now)
	if err := r.Complete(fixtures.AstrologyJSON(intake.Birth, intake.Preferences), fixtures.AstrologyAccuracy*100, now); err != nil {
		return nil, err
	}
	return r, nil
}

// SaveReading сохраняет чтение в истории пользователя.
func (s *Service) SaveReading(ctx context.Context, userID string, req model.SaveReadingRequest) (*model.SavedReading, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown reading type %q", ErrInvalidReading, req.Kind)
	}
	if len(req.Result) == 0 || !json.Valid(req.Result) {
		return nil, fmt.Errorf("%w: result must be valid JSON", ErrInvalidReading)
	}

	now := s.now()
	r := model.Reading{
		ID:              uuid.NewString(),
		UserID:          userID,
		Kind:            req.Kind,
		Status:          model.StatusCompleted,
		CreatedAt:       now,
		UpdatedAt:       now,
		Result:          req.Result,
		SourceID:        req.SourceID,
		PalmReferenceID: req.PalmReferenceID,
	}
	if req.Accuracy != nil {
		acc := model.ClampAccuracy(*req.Accuracy)
		r.Accuracy = &acc
	}

	if err := s.repo.SaveReading(ctx, r); err != nil {
		return nil, err
	}
	return &model.SavedReading{ID: r.ID, Kind: r.Kind, Status: r.Status, CreatedAt: r.CreatedAt}, nil
}

// ListReadings возвращает страницу истории пользователя.
func (s *Service) ListReadings(ctx context.Context, userID string, limit, offset int) (*model.ReadingPage, error) {
	readings, total, err := s.repo.ListReadings(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &model.ReadingPage{Count: total, Results: readings}, nil
}
