package apiclient

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/apierr"
	"github.com/mmeshcher/palmastro/internal/model"
)

// Fallback выбирает между живым и симулированным клиентом.
//
// В режиме заглушек все вызовы уходят в Simulated. Иначе вызов идёт в Live,
// а сетевые ошибки, ошибки статуса и разбора заменяются симулированным ответом.
// Ошибки аутентификации, некорректного ввода и неготовый результат всегда
// возвращаются вызывающему. Для регистрации и смены тарифа возвращается и
// отказ сервера с кодом 4xx: подменять его демонстрационным успехом нельзя.
type Fallback struct {
	live   API
	sim    *Simulated
	mock   bool
	logger *zap.Logger
}

// NewFallback создаёт клиент с политикой подмены. live может быть nil в режиме заглушек.
func NewFallback(live API, sim *Simulated, mockMode bool, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{live: live, sim: sim, mock: mockMode || live == nil, logger: logger}
}

// MockMode сообщает, работает ли клиент только на заглушках.
func (f *Fallback) MockMode() bool { return f.mock }

// Операции, для которых отказ сервера с кодом 4xx окончателен.
var accountOps = map[string]bool{
	opSignup:      true,
	opUpgradePlan: true,
}

func rejected(err error) bool {
	var apiErr *apierr.Error
	return errors.As(err, &apiErr) && apiErr.Kind == apierr.KindStatus &&
		apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

func dispatch[T any](ctx context.Context, f *Fallback, op string, simOnly bool,
	liveFn func(API) (T, error), simFn func(*Simulated) (T, error),
) (T, error) {
	if f.mock || simOnly {
		callsTotal.WithLabelValues(op, modeMock).Inc()
		return simFn(f.sim)
	}

	callsTotal.WithLabelValues(op, modeLive).Inc()
	v, err := liveFn(f.live)
	if err == nil || !apierr.Fallbackable(err) || errors.Is(err, ErrResultPending) || ctx.Err() != nil {
		return v, err
	}
	if accountOps[op] && rejected(err) {
		return v, err
	}

	fallbacksTotal.WithLabelValues(op).Inc()
	f.logger.Warn("api call failed, using simulated response",
		zap.String("op", op),
		zap.Error(err),
	)
	return simFn(f.sim)
}

type none struct{}

func dispatchErr(ctx context.Context, f *Fallback, op string, simOnly bool,
	liveFn func(API) error, simFn func(*Simulated) error,
) error {
	_, err := dispatch(ctx, f, op, simOnly,
		func(a API) (none, error) { return none{}, liveFn(a) },
		func(s *Simulated) (none, error) { return none{}, simFn(s) },
	)
	return err
}

// Login выполняет вход.
func (f *Fallback) Login(ctx context.Context, email, password string) (*model.LoginResult, error) {
	return dispatch(ctx, f, opLogin, false,
		func(a API) (*model.LoginResult, error) { return a.Login(ctx, email, password) },
		func(s *Simulated) (*model.LoginResult, error) { return s.Login(ctx, email, password) },
	)
}

// Signup регистрирует пользователя.
func (f *Fallback) Signup(ctx context.Context, req model.SignupRequest) (*model.SignupResponse, error) {
	return dispatch(ctx, f, opSignup, false,
		func(a API) (*model.SignupResponse, error) { return a.Signup(ctx, req) },
		func(s *Simulated) (*model.SignupResponse, error) { return s.Signup(ctx, req) },
	)
}

// Logout выполняет выход.
func (f *Fallback) Logout(ctx context.Context) error {
	return dispatchErr(ctx, f, opLogout, false,
		func(a API) error { return a.Logout(ctx) },
		func(s *Simulated) error { return s.Logout(ctx) },
	)
}

// RefreshToken обновляет токен доступа.
func (f *Fallback) RefreshToken(ctx context.Context) (string, error) {
	return dispatch(ctx, f, opRefreshToken, false,
		func(a API) (string, error) { return a.RefreshToken(ctx) },
		func(s *Simulated) (string, error) { return s.RefreshToken(ctx) },
	)
}

// Profile возвращает профиль пользователя.
func (f *Fallback) Profile(ctx context.Context) (*model.User, error) {
	return dispatch(ctx, f, opProfile, false,
		func(a API) (*model.User, error) { return a.Profile(ctx) },
		func(s *Simulated) (*model.User, error) { return s.Profile(ctx) },
	)
}

// Dashboard возвращает сводку пользователя.
func (f *Fallback) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	return dispatch(ctx, f, opDashboard, false,
		func(a API) (*model.Dashboard, error) { return a.Dashboard(ctx) },
		func(s *Simulated) (*model.Dashboard, error) { return s.Dashboard(ctx) },
	)
}

// DashboardRealtime возвращает признак появления новых чтений.
func (f *Fallback) DashboardRealtime(ctx context.Context) (*model.DashboardRealtime, error) {
	return dispatch(ctx, f, opRealtime, false,
		func(a API) (*model.DashboardRealtime, error) { return a.DashboardRealtime(ctx) },
		func(s *Simulated) (*model.DashboardRealtime, error) { return s.DashboardRealtime(ctx) },
	)
}

// UpgradePlan меняет тарифный план пользователя.
func (f *Fallback) UpgradePlan(ctx context.Context, planName string) (*model.PlanUpgrade, error) {
	return dispatch(ctx, f, opUpgradePlan, false,
		func(a API) (*model.PlanUpgrade, error) { return a.UpgradePlan(ctx, planName) },
		func(s *Simulated) (*model.PlanUpgrade, error) { return s.UpgradePlan(ctx, planName) },
	)
}

// UploadImage загружает изображение ладони.
func (f *Fallback) UploadImage(ctx context.Context, img model.Image) (*model.UploadResult, error) {
	return dispatch(ctx, f, opUploadImage, false,
		func(a API) (*model.UploadResult, error) { return a.UploadImage(ctx, img) },
		func(s *Simulated) (*model.UploadResult, error) { return s.UploadImage(ctx, img) },
	)
}

// AnalyzeImage анализирует изображение ладони.
func (f *Fallback) AnalyzeImage(ctx context.Context, img model.Image) (*model.AnalyzeResult, error) {
	return dispatch(ctx, f, opAnalyzeImage, false,
		func(a API) (*model.AnalyzeResult, error) { return a.AnalyzeImage(ctx, img) },
		func(s *Simulated) (*model.AnalyzeResult, error) { return s.AnalyzeImage(ctx, img) },
	)
}

// CreateAstrologyReading создаёт астрологическое чтение одним запросом.
func (f *Fallback) CreateAstrologyReading(ctx context.Context, intake model.AstrologyIntake) (*model.Reading, error) {
	return dispatch(ctx, f, opCreateAstrology, false,
		func(a API) (*model.Reading, error) { return a.CreateAstrologyReading(ctx, intake) },
		func(s *Simulated) (*model.Reading, error) { return s.CreateAstrologyReading(ctx, intake) },
	)
}

// SubmitPersonalInfo открывает астрологическую сессию.
func (f *Fallback) SubmitPersonalInfo(ctx context.Context, info model.PersonalInfo) (*model.SessionHandle, error) {
	return dispatch(ctx, f, opPersonalInfo, false,
		func(a API) (*model.SessionHandle, error) { return a.SubmitPersonalInfo(ctx, info) },
		func(s *Simulated) (*model.SessionHandle, error) { return s.SubmitPersonalInfo(ctx, info) },
	)
}

// SubmitBirthDetails дополняет сессию данными о рождении.
// Сессии, открытые симулированным клиентом, остаются в нём.
func (f *Fallback) SubmitBirthDetails(ctx context.Context, sessionID string, birth model.BirthDetails) error {
	return dispatchErr(ctx, f, opBirthDetails, f.sim.Owns(sessionID),
		func(a API) error { return a.SubmitBirthDetails(ctx, sessionID, birth) },
		func(s *Simulated) error { return s.SubmitBirthDetails(ctx, sessionID, birth) },
	)
}

// SubmitPreferences дополняет сессию предпочтениями.
func (f *Fallback) SubmitPreferences(ctx context.Context, sessionID string, prefs model.Preferences) error {
	return dispatchErr(ctx, f, opPreferences, f.sim.Owns(sessionID),
		func(a API) error { return a.SubmitPreferences(ctx, sessionID, prefs) },
		func(s *Simulated) error { return s.SubmitPreferences(ctx, sessionID, prefs) },
	)
}

// GenerateReading запускает генерацию чтения.
func (f *Fallback) GenerateReading(ctx context.Context, sessionID string) (*model.SessionHandle, error) {
	return dispatch(ctx, f, opGenerate, f.sim.Owns(sessionID),
		func(a API) (*model.SessionHandle, error) { return a.GenerateReading(ctx, sessionID) },
		func(s *Simulated) (*model.SessionHandle, error) { return s.GenerateReading(ctx, sessionID) },
	)
}

// StartNumerology запускает нумерологический расчёт.
func (f *Fallback) StartNumerology(ctx context.Context, req model.NumerologyRequest) (*model.SessionHandle, error) {
	return dispatch(ctx, f, opNumerology, false,
		func(a API) (*model.SessionHandle, error) { return a.StartNumerology(ctx, req) },
		func(s *Simulated) (*model.SessionHandle, error) { return s.StartNumerology(ctx, req) },
	)
}

// CheckStatus запрашивает статус генерации.
func (f *Fallback) CheckStatus(ctx context.Context, statusURL string) (*model.StatusReport, error) {
	return dispatch(ctx, f, opCheckStatus, IsSimulatedURL(statusURL),
		func(a API) (*model.StatusReport, error) { return a.CheckStatus(ctx, statusURL) },
		func(s *Simulated) (*model.StatusReport, error) { return s.CheckStatus(ctx, statusURL) },
	)
}

// FetchResult забирает результат генерации.
func (f *Fallback) FetchResult(ctx context.Context, resultURL string) (json.RawMessage, error) {
	return dispatch(ctx, f, opFetchResult, IsSimulatedURL(resultURL),
		func(a API) (json.RawMessage, error) { return a.FetchResult(ctx, resultURL) },
		func(s *Simulated) (json.RawMessage, error) { return s.FetchResult(ctx, resultURL) },
	)
}

// ListReadings возвращает страницу истории чтений.
func (f *Fallback) ListReadings(ctx context.Context, limit, offset int) (*model.ReadingPage, error) {
	return dispatch(ctx, f, opListReadings, false,
		func(a API) (*model.ReadingPage, error) { return a.ListReadings(ctx, limit, offset) },
		func(s *Simulated) (*model.ReadingPage, error) { return s.ListReadings(ctx, limit, offset) },
	)
}

// SaveReading сохраняет чтение в истории пользователя.
func (f *Fallback) SaveReading(ctx context.Context, req model.SaveReadingRequest) (*model.SaveReadingResponse, error) {
	return dispatch(ctx, f, opSaveReading, false,
		func(a API) (*model.SaveReadingResponse, error) { return a.SaveReading(ctx, req) },
		func(s *Simulated) (*model.SaveReadingResponse, error) { return s.SaveReading(ctx, req) },
	)
}

// Predictions возвращает сводку предсказаний.
func (f *Fallback) Predictions(ctx context.Context) (*model.PredictionList, error) {
	return dispatch(ctx, f, opPredictions, false,
		func(a API) (*model.PredictionList, error) { return a.Predictions(ctx) },
		func(s *Simulated) (*model.PredictionList, error) { return s.Predictions(ctx) },
	)
}

var (
	_ API = (*Live)(nil)
	_ API = (*Simulated)(nil)
	_ API = (*Fallback)(nil)
)
