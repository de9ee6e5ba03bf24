// Package apiclient предоставляет доступ к API PalmAstro.
//
// Live выполняет HTTP-запросы и возвращает классифицированные ошибки apierr.
// Simulated отвечает заготовленными данными без обращения к сети.
// Fallback выбирает между ними и подменяет сбойные ответы симулированными.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mmeshcher/palmastro/internal/credentials"
	"github.com/mmeshcher/palmastro/internal/fixtures"
	"github.com/mmeshcher/palmastro/internal/model"
)

// ErrResultPending возвращается, если результат генерации ещё не готов (HTTP 202).
var ErrResultPending = errors.New("result is not ready yet")

// API описывает операции клиента PalmAstro.
type API interface {
	Login(ctx context.Context, email, password string) (*model.LoginResult, error)
	Signup(ctx context.Context, req model.SignupRequest) (*model.SignupResponse, error)
	Logout(ctx context.Context) error
	RefreshToken(ctx context.Context) (string, error)
	Profile(ctx context.Context) (*model.User, error)
	Dashboard(ctx context.Context) (*model.Dashboard, error)
	DashboardRealtime(ctx context.Context) (*model.DashboardRealtime, error)
	UpgradePlan(ctx context.Context, planName string) (*model.PlanUpgrade, error)

	UploadImage(ctx context.Context, img model.Image) (*model.UploadResult, error)
	AnalyzeImage(ctx context.Context, img model.Image) (*model.AnalyzeResult, error)

	CreateAstrologyReading(ctx context.Context, intake model.AstrologyIntake) (*model.Reading, error)
	SubmitPersonalInfo(ctx context.Context, info model.PersonalInfo) (*model.SessionHandle, error)
	SubmitBirthDetails(ctx context.Context, sessionID string, birth model.BirthDetails) error
	SubmitPreferences(ctx context.Context, sessionID string, prefs model.Preferences) error
	GenerateReading(ctx context.Context, sessionID string) (*model.SessionHandle, error)
	StartNumerology(ctx context.Context, req model.NumerologyRequest) (*model.SessionHandle, error)

	CheckStatus(ctx context.Context, statusURL string) (*model.StatusReport, error)
	FetchResult(ctx context.Context, resultURL string) (json.RawMessage, error)

	ListReadings(ctx context.Context, limit, offset int) (*model.ReadingPage, error)
	SaveReading(ctx context.Context, req model.SaveReadingRequest) (*model.SaveReadingResponse, error)
	Predictions(ctx context.Context) (*model.PredictionList, error)
}

// Названия операций для логов, метрик и ошибок.
const (
	opLogin           = "login"
	opSignup          = "signup"
	opUpgradePlan     = "upgrade-plan"
	opRealtime        = "dashboard-realtime"
	opPredictions     = "predictions"
	opLogout          = "logout"
	opRefreshToken    = "refresh-token"
	opProfile         = "profile"
	opDashboard       = "dashboard"
	opUploadImage     = "upload-image"
	opAnalyzeImage    = "analyze-image"
	opCreateAstrology = "create-astrology-reading"
	opPersonalInfo    = "personal-info"
	opBirthDetails    = "birth-details"
	opPreferences     = "preferences"
	opGenerate        = "generate-reading"
	opNumerology      = "start-numerology"
	opCheckStatus     = "check-status"
	opFetchResult     = "fetch-result"
	opListReadings    = "list-readings"
	opSaveReading     = "save-reading"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type upgradePlanRequest struct {
	PlanName string `json:"plan_name"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type birthDetailsRequest struct {
	SessionID string `json:"session_id"`
	model.BirthDetails
}

type preferencesRequest struct {
	SessionID string `json:"session_id"`
	model.Preferences
}

type generateRequest struct {
	SessionID string `json:"session_id"`
}

type astrologyRequest struct {
	model.PersonalInfo
	model.BirthDetails
	model.Preferences
}

type resultEnvelope struct {
	Result json.RawMessage `json:"result"`
}

// applyPlan отражает смену тарифа в сохранённом снимке пользователя.
func applyPlan(creds *credentials.Session, plan model.Plan) error {
	u, ok, err := creds.User()
	if err != nil || !ok {
		return err
	}
	u.Plan = plan.Name
	u.IsPremium = fixtures.IsPremiumPlan(plan.Name)
	return creds.SaveUser(*u)
}
