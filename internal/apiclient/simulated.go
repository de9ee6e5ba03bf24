package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/palmastro/internal/apierr"
	"github.com/mmeshcher/palmastro/internal/credentials"
	"github.com/mmeshcher/palmastro/internal/derive"
	"github.com/mmeshcher/palmastro/internal/fixtures"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/validation"
)

const (
	simulatedScheme  = "mock://"
	mockAccessToken  = "mock_access_token"
	mockRefreshToken = "mock_refresh_token"
)

// DefaultStatusScript задаёт последовательность статусов, которую отдаёт симулированная генерация.
var DefaultStatusScript = []model.GenerationStatus{
	model.GenerationPending,
	model.GenerationProcessing,
	model.GenerationCompleted,
}

type simSession struct {
	kind       model.ReadingKind
	birth      model.BirthDetails
	prefs      model.Preferences
	numerology model.NumerologyRequest
	checks     int
}

// Simulated отвечает заготовленными данными после искусственной задержки.
type Simulated struct {
	creds    *credentials.Session
	delayMin time.Duration
	delayMax time.Duration
	script   []model.GenerationStatus
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*simSession
}

// SimOption настраивает Simulated.
type SimOption func(*Simulated)

// WithDelay задаёт границы искусственной задержки ответа.
func WithDelay(lo, hi time.Duration) SimOption {
	return func(s *Simulated) {
		if lo < 0 {
			lo = 0
		}
		if hi < lo {
			hi = lo
		}
		s.delayMin, s.delayMax = lo, hi
	}
}

// WithStatusScript задаёт последовательность статусов генерации.
// После её окончания повторяется последний статус.
func WithStatusScript(script ...model.GenerationStatus) SimOption {
	return func(s *Simulated) {
		if len(script) > 0 {
			s.script = append([]model.GenerationStatus(nil), script...)
		}
	}
}

// WithClock задаёт источник текущего времени.
func WithClock(now func() time.Time) SimOption {
	return func(s *Simulated) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSimulated создаёт симулированный клиент.
func NewSimulated(creds *credentials.Session, opts ...SimOption) *Simulated {
	s := &Simulated{
		creds:    creds,
		delayMin: 500 * time.Millisecond,
		delayMax: 1500 * time.Millisecond,
		script:   DefaultStatusScript,
		now:      time.Now,
		sessions: make(map[string]*simSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsSimulatedURL сообщает, выдан ли адрес симулированным клиентом.
func IsSimulatedURL(u string) bool {
	return strings.HasPrefix(u, simulatedScheme)
}

// Owns сообщает, была ли сессия открыта симулированным клиентом.
func (s *Simulated) Owns(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

func (s *Simulated) wait(ctx context.Context) error {
	d := s.delayMin
	if span := s.delayMax - s.delayMin; span > 0 {
		d += rand.N(span + 1)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Login сохраняет демонстрационные токены и пользователя.
func (s *Simulated) Login(ctx context.Context, email, _ string) (*model.LoginResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	res := &model.LoginResult{
		User:   fixtures.MockUser(email),
		Tokens: model.Tokens{Access: mockAccessToken, Refresh: mockRefreshToken},
	}
	if err := s.creds.SetTokens(res.Tokens); err != nil {
		return nil, err
	}
	if err := s.creds.SaveUser(res.User); err != nil {
		return nil, err
	}
	return res, nil
}

// Signup проверяет форму и регистрирует демонстрационного пользователя как при входе.
func (s *Simulated) Signup(ctx context.Context, req model.SignupRequest) (*model.SignupResponse, error) {
	if err := validation.ValidateSignup(req); err != nil {
		return nil, apierr.InvalidInput(opSignup, err)
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	u := fixtures.MockUser(req.Email)
	u.FirstName, u.LastName = splitName(req.FullName)
	u.Plan = fixtures.FreePlan
	u.IsPremium = false
	u.TotalReadings = 0
	u.AccuracyScore = 0
	u.MemberSince = s.now().UTC()

	if err := s.creds.SetTokens(model.Tokens{Access: mockAccessToken, Refresh: mockRefreshToken}); err != nil {
		return nil, err
	}
	if err := s.creds.SaveUser(u); err != nil {
		return nil, err
	}
	return &model.SignupResponse{
		Success: true,
		Message: "Account created successfully.",
		Data:    model.SignupData{User: u, AccessToken: mockAccessToken, RefreshToken: mockRefreshToken},
	}, nil
}

// Logout очищает учётные данные.
func (s *Simulated) Logout(ctx context.Context) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.creds.Clear()
}

// RefreshToken выдаёт новый демонстрационный токен, если есть refresh-токен.
func (s *Simulated) RefreshToken(ctx context.Context) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	refresh, err := s.creds.RefreshToken()
	if err != nil {
		return "", err
	}
	if refresh == "" {
		return "", apierr.NotAuthenticated(opRefreshToken)
	}
	if err := s.creds.SetAccessToken(mockAccessToken); err != nil {
		return "", err
	}
	return mockAccessToken, nil
}

// Profile возвращает сохранённого пользователя или демонстрационного.
func (s *Simulated) Profile(ctx context.Context) (*model.User, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if u, ok, err := s.creds.User(); err == nil && ok {
		return u, nil
	}
	u := fixtures.MockUser("")
	return &u, nil
}

// Dashboard возвращает заготовленную сводку.
func (s *Simulated) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	d := fixtures.Dashboard()
	return &d, nil
}

// DashboardRealtime сообщает число чтений, видимых в демонстрационном режиме.
func (s *Simulated) DashboardRealtime(ctx context.Context) (*model.DashboardRealtime, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	all, err := s.allReadings()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := &model.DashboardRealtime{
		HasUpdates:    len(all) > 0,
		ReadingsCount: len(all),
		Timestamp:     now,
	}
	for _, r := range all {
		if out.LastUpdate == nil || r.UpdatedAt.After(*out.LastUpdate) {
			t := r.UpdatedAt
			out.LastUpdate = &t
		}
	}
	return out, nil
}

// UpgradePlan переводит сохранённого пользователя на план из каталога.
func (s *Simulated) UpgradePlan(ctx context.Context, planName string) (*model.PlanUpgrade, error) {
	if !s.creds.Authenticated() {
		return nil, apierr.NotAuthenticated(opUpgradePlan)
	}
	if err := validation.ValidatePlanName(planName); err != nil {
		return nil, apierr.InvalidInput(opUpgradePlan, err)
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	plan, _ := fixtures.FindPlan(planName)
	if err := applyPlan(s.creds, plan); err != nil {
		return nil, err
	}
	return &model.PlanUpgrade{
		Success: true,
		Message: "Successfully upgraded to " + plan.DisplayName,
		Plan:    plan,
	}, nil
}

// UploadImage имитирует загрузку изображения.
func (s *Simulated) UploadImage(ctx context.Context, img model.Image) (*model.UploadResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	id := "upload_" + uuid.NewString()
	name := img.Name
	if name == "" {
		name = "palm"
	}
	return &model.UploadResult{UploadID: id, ImageURL: simulatedScheme + "uploads/" + id + "/" + name}, nil
}

// AnalyzeImage возвращает заготовленный анализ ладони.
func (s *Simulated) AnalyzeImage(ctx context.Context, _ model.Image) (*model.AnalyzeResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return &model.AnalyzeResult{ReadingID: uuid.NewString(), Result: fixtures.PalmJSON()}, nil
}

// CreateAstrologyReading возвращает завершённое астрологическое чтение.
func (s *Simulated) CreateAstrologyReading(ctx context.Context, intake model.AstrologyIntake) (*model.Reading, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	r := model.NewReading(uuid.NewString(), model.KindAstrology, s.now().UTC())
	if err := r.Complete(fixtures.AstrologyJSON(intake.Birth, intake.Preferences), fixtures.AstrologyAccuracy*100, s.now().UTC()); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Simulated) openSession(kind model.ReadingKind, fill func(*simSession)) *model.SessionHandle {
	id := uuid.NewString()
	sess := &simSession{kind: kind}
	fill(sess)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	return s.handle(id, kind, "")
}

func (s *Simulated) handle(id string, kind model.ReadingKind, status model.GenerationStatus) *model.SessionHandle {
	prefix := simulatedScheme + routeFor(kind) + "/" + id
	return &model.SessionHandle{
		ID:        id,
		Status:    status,
		StatusURL: prefix + "/status",
		ResultURL: prefix + "/result",
	}
}

func routeFor(kind model.ReadingKind) string {
	if kind == model.KindNumerology {
		return "numerology"
	}
	return "astrology"
}

// session возвращает сессию, создавая её для неизвестного идентификатора.
func (s *Simulated) session(id string, kind model.ReadingKind) *simSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &simSession{kind: kind}
		s.sessions[id] = sess
	}
	return sess
}

// SubmitPersonalInfo открывает симулированную астрологическую сессию.
func (s *Simulated) SubmitPersonalInfo(ctx context.Context, _ model.PersonalInfo) (*model.SessionHandle, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.openSession(model.KindAstrology, func(*simSession) {}), nil
}

// SubmitBirthDetails запоминает данные о рождении в сессии.
func (s *Simulated) SubmitBirthDetails(ctx context.Context, sessionID string, birth model.BirthDetails) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	sess := s.session(sessionID, model.KindAstrology)
	s.mu.Lock()
	sess.birth = birth
	s.mu.Unlock()
	return nil
}

// SubmitPreferences запоминает предпочтения в сессии.
func (s *Simulated) SubmitPreferences(ctx context.Context, sessionID string, prefs model.Preferences) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	sess := s.session(sessionID, model.KindAstrology)
	s.mu.Lock()
	sess.prefs = prefs
	s.mu.Unlock()
	return nil
}

// GenerateReading запускает симулированную генерацию.
func (s *Simulated) GenerateReading(ctx context.Context, sessionID string) (*model.SessionHandle, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	sess := s.session(sessionID, model.KindAstrology)
	return s.handle(sessionID, sess.kind, model.GenerationPending), nil
}

// StartNumerology открывает симулированную нумерологическую сессию.
func (s *Simulated) StartNumerology(ctx context.Context, req model.NumerologyRequest) (*model.SessionHandle, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	h := s.openSession(model.KindNumerology, func(sess *simSession) { sess.numerology = req })
	h.Status = model.GenerationPending
	return h, nil
}

func parseSimulatedURL(u string) (model.ReadingKind, string, error) {
	if !IsSimulatedURL(u) {
		return "", "", fmt.Errorf("not a simulated url: %q", u)
	}
	parts := strings.Split(strings.TrimPrefix(u, simulatedScheme), "/")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("malformed simulated url: %q", u)
	}
	kind := model.KindAstrology
	if parts[0] == "numerology" {
		kind = model.KindNumerology
	}
	return kind, parts[1], nil
}

// CheckStatus возвращает очередной статус из сценария сессии.
// Для неизвестной сессии генерация считается завершённой.
func (s *Simulated) CheckStatus(ctx context.Context, statusURL string) (*model.StatusReport, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	_, id, err := parseSimulatedURL(statusURL)
	if err != nil {
		return &model.StatusReport{Status: model.GenerationCompleted}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return &model.StatusReport{Status: model.GenerationCompleted}, nil
	}

	idx := min(sess.checks, len(s.script)-1)
	sess.checks++
	report := &model.StatusReport{Status: s.script[idx]}
	if report.Status == model.GenerationFailed {
		report.ErrorMessage = "simulated generation failure"
	}
	return report, nil
}

// FetchResult возвращает результат сессии. Тип результата определяется по адресу.
func (s *Simulated) FetchResult(ctx context.Context, resultURL string) (json.RawMessage, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	kind, id, err := parseSimulatedURL(resultURL)
	if err != nil {
		kind = model.KindAstrology
		if strings.Contains(resultURL, "/numerology/") {
			kind = model.KindNumerology
		}
	}

	snap := simSession{kind: kind}
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		snap = *sess
	}
	s.mu.Unlock()

	if snap.kind == model.KindNumerology {
		return fixtures.NumerologyJSON(snap.numerology), nil
	}
	return fixtures.AstrologyJSON(snap.birth, snap.prefs), nil
}

// ListReadings возвращает сохранённые в демонстрационном режиме чтения и заготовленную историю.
func (s *Simulated) ListReadings(ctx context.Context, limit, offset int) (*model.ReadingPage, error) {
	offset = max(offset, 0)
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	all, err := s.allReadings()
	if err != nil {
		return nil, err
	}

	page := &model.ReadingPage{Count: len(all)}
	if offset >= len(all) {
		page.Results = []model.Reading{}
		return page, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page.Results = all[offset:end]
	return page, nil
}

func (s *Simulated) allReadings() ([]model.Reading, error) {
	saved, err := s.creds.MockReadings()
	if err != nil {
		return nil, err
	}
	return append(saved, fixtures.RecentReadings()...), nil
}

// SaveReading сохраняет чтение. Без токена доступа возвращает ошибку аутентификации.
func (s *Simulated) SaveReading(ctx context.Context, req model.SaveReadingRequest) (*model.SaveReadingResponse, error) {
	if !s.creds.Authenticated() {
		return nil, apierr.NotAuthenticated(opSaveReading)
	}
	if !req.Kind.Valid() {
		return nil, apierr.InvalidInput(opSaveReading, errors.New("unknown reading type"))
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := model.Reading{
		ID:              uuid.NewString(),
		Kind:            req.Kind,
		Status:          model.StatusCompleted,
		CreatedAt:       now,
		UpdatedAt:       now,
		Result:          append(json.RawMessage(nil), req.Result...),
		SourceID:        req.SourceID,
		PalmReferenceID: req.PalmReferenceID,
	}
	if req.Accuracy != nil {
		acc := model.ClampAccuracy(*req.Accuracy)
		r.Accuracy = &acc
	}
	if u, ok, err := s.creds.User(); err == nil && ok {
		r.UserID = u.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	saved, err := s.creds.MockReadings()
	if err != nil {
		return nil, err
	}
	if err := s.creds.SaveMockReadings(append([]model.Reading{r}, saved...)); err != nil {
		return nil, err
	}

	return &model.SaveReadingResponse{
		Success: true,
		Message: "Reading saved",
		Data:    model.SavedReading{ID: r.ID, Kind: r.Kind, Status: r.Status, CreatedAt: r.CreatedAt},
	}, nil
}

// Predictions собирает предсказания из сохранённых и заготовленных чтений.
func (s *Simulated) Predictions(ctx context.Context) (*model.PredictionList, error) {
	if !s.creds.Authenticated() {
		return nil, apierr.NotAuthenticated(opPredictions)
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	all, err := s.allReadings()
	if err != nil {
		return nil, err
	}
	results := derive.Predictions(all, derive.MaxPredictions)
	return &model.PredictionList{Count: len(results), Results: results}, nil
}

func splitName(full string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(full), " ")
	return first, strings.TrimSpace(last)
}
