package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/palmastro/internal/apierr"
	"github.com/mmeshcher/palmastro/internal/config"
	"github.com/mmeshcher/palmastro/internal/credentials"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/validation"
)

const maxResponseBytes = 10 << 20

type authMode int

const (
	// authNone не требует токена.
	authNone authMode = iota
	// authOptional прикладывает токен, если он есть, и обновляет его при 401.
	authOptional
	// authRequired отказывает без запроса, если токена нет.
	authRequired
)

// Live выполняет запросы к серверу PalmAstro. Сам он никогда не подменяет
// ответы заглушками.
type Live struct {
	baseURL        string
	http           *http.Client
	creds          *credentials.Session
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	debug          bool
	refreshGroup   singleflight.Group
}

// Option настраивает Live при создании.
type Option func(*Live) error

// WithHTTPClient задаёт HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Live) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.http = hc
		return nil
	}
}

// WithHTTPTimeout задаёт таймаут HTTP-клиента.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Live) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		c.http.Timeout = d
		return nil
	}
}

// WithRetry задаёт число попыток и начальную паузу экспоненциального backoff.
func WithRetry(attempts int, initial time.Duration) Option {
	return func(c *Live) error {
		if attempts < 1 {
			return fmt.Errorf("retry attempts must be >= 1")
		}
		c.retryAttempts = attempts
		if initial > 0 {
			c.initialBackoff = initial
		}
		return nil
	}
}

// WithDebugLogging включает дамп запросов и ответов в лог.
func WithDebugLogging(enabled bool) Option {
	return func(c *Live) error {
		c.debug = enabled
		return nil
	}
}

// NewLive создаёт клиент для указанного базового адреса.
func NewLive(baseURL string, creds *credentials.Session, logger *zap.Logger, opts ...Option) (*Live, error) {
	if baseURL == "" {
		return nil, errors.New("base url is empty")
	}
	if creds == nil {
		return nil, errors.New("credentials session is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Live{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{Timeout: 30 * time.Second},
		creds:          creds,
		logger:         logger,
		retryAttempts:  3,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     5 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if c.debug {
		base = &debugTransport{base: base, logger: logger}
	}
	hc := *c.http
	hc.Transport = &bearerTransport{base: base, creds: creds}
	c.http = &hc

	return c, nil
}

type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	image   *model.Image
	auth    authMode
	pending bool
}

func (c *Live) resolve(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// do выполняет запрос с повторами и однократным обновлением токена при 401.
func (c *Live) do(ctx context.Context, req request, out any) error {
	if req.auth == authRequired && !c.creds.Authenticated() {
		return apierr.NotAuthenticated(req.op)
	}

	err := c.send(ctx, req, out)
	if req.auth == authNone || !isUnauthorized(err) {
		return err
	}

	if !c.creds.Authenticated() {
		return apierr.NotAuthenticated(req.op)
	}

	if _, refreshErr := c.RefreshToken(ctx); refreshErr != nil {
		c.logger.Info("token refresh failed", zap.String("op", req.op), zap.Error(refreshErr))
		if apierr.Recoverable(refreshErr) {
			return refreshErr
		}
		c.dropCredentials()
		return apierr.NotAuthenticated(req.op)
	}

	err = c.send(ctx, req, out)
	if isUnauthorized(err) {
		c.dropCredentials()
		return apierr.NotAuthenticated(req.op)
	}
	return err
}

func (c *Live) dropCredentials() {
	if err := c.creds.Clear(); err != nil {
		c.logger.Warn("failed to clear credentials", zap.Error(err))
	}
}

func isUnauthorized(err error) bool {
	var apiErr *apierr.Error
	return errors.As(err, &apiErr) && apiErr.Kind == apierr.KindStatus && apiErr.StatusCode == http.StatusUnauthorized
}

func (c *Live) send(ctx context.Context, req request, out any) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialBackoff
	exp.MaxInterval = c.maxBackoff
	exp.Multiplier = 2
	exp.Reset()

	for attempt := 1; ; attempt++ {
		err := c.roundTrip(ctx, req, out)
		if err == nil || !apierr.Recoverable(err) || attempt >= c.retryAttempts {
			return err
		}

		retriesTotal.WithLabelValues(req.op).Inc()
		wait := exp.NextBackOff()
		c.logger.Debug("retrying request",
			zap.String("op", req.op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Live) roundTrip(ctx context.Context, req request, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.image != nil:
		buf, ct, err := encodeImage(*req.image)
		if err != nil {
			return apierr.InvalidInput(req.op, err)
		}
		body, contentType = buf, ct
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return apierr.InvalidInput(req.op, fmt.Errorf("encode request: %w", err))
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.resolve(req.path, req.query), body)
	if err != nil {
		return apierr.InvalidInput(req.op, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return apierr.Network(req.op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apierr.Network(req.op, fmt.Errorf("read response: %w", err))
	}

	if req.pending && resp.StatusCode == http.StatusAccepted {
		return &apierr.Error{Op: req.op, Kind: apierr.KindStatus, StatusCode: resp.StatusCode, Err: ErrResultPending}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.FromStatus(req.op, resp.StatusCode, string(data))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apierr.Decode(req.op, err)
	}
	return nil
}

func encodeImage(img model.Image) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := img.Name
	if name == "" {
		name = "palm"
	}
	ct := img.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", ct)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Login выполняет вход и сохраняет токены и снимок пользователя.
func (c *Live) Login(ctx context.Context, email, password string) (*model.LoginResult, error) {
	var res model.LoginResult
	err := c.do(ctx, request{
		op:     opLogin,
		method: http.MethodPost,
		path:   config.PathLogin,
		body:   loginRequest{Email: email, Password: password},
		auth:   authNone,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Tokens.Access == "" {
		return nil, apierr.Decode(opLogin, errors.New("response has no access token"))
	}

	if err := c.creds.SetTokens(res.Tokens); err != nil {
		return nil, err
	}
	if err := c.creds.SaveUser(res.User); err != nil {
		return nil, err
	}
	return &res, nil
}

// Signup регистрирует пользователя. Форма проверяется до обращения к сети;
// выданные сервером токены и профиль сохраняются как при входе.
func (c *Live) Signup(ctx context.Context, req model.SignupRequest) (*model.SignupResponse, error) {
	if err := validation.ValidateSignup(req); err != nil {
		return nil, apierr.InvalidInput(opSignup, err)
	}

	var res model.SignupResponse
	err := c.do(ctx, request{
		op:     opSignup,
		method: http.MethodPost,
		path:   config.PathSignup,
		body:   req,
		auth:   authNone,
	}, &res)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, apierr.Decode(opSignup, fmt.Errorf("signup rejected: %s", res.Message))
	}

	if res.Data.AccessToken != "" {
		tokens := model.Tokens{Access: res.Data.AccessToken, Refresh: res.Data.RefreshToken}
		if err := c.creds.SetTokens(tokens); err != nil {
			return nil, err
		}
	}
	if err := c.creds.SaveUser(res.Data.User); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout сообщает серверу о выходе и очищает учётные данные независимо от ответа.
func (c *Live) Logout(ctx context.Context) error {
	refresh, _ := c.creds.RefreshToken()
	err := c.do(ctx, request{
		op:     opLogout,
		method: http.MethodPost,
		path:   config.PathLogout,
		body:   refreshRequest{Refresh: refresh},
		auth:   authOptional,
	}, nil)

	if clearErr := c.creds.Clear(); clearErr != nil {
		return clearErr
	}
	if errors.Is(err, apierr.ErrNotAuthenticated) {
		return nil
	}
	return err
}

// RefreshToken обменивает refresh-токен на новый токен доступа.
// Одновременные вызовы объединяются в один запрос.
func (c *Live) RefreshToken(ctx context.Context) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		refresh, err := c.creds.RefreshToken()
		if err != nil {
			return "", err
		}
		if refresh == "" {
			return "", apierr.NotAuthenticated(opRefreshToken)
		}

		var res refreshResponse
		err = c.send(ctx, request{
			op:     opRefreshToken,
			method: http.MethodPost,
			path:   config.PathRefreshToken,
			body:   refreshRequest{Refresh: refresh},
		}, &res)
		if err != nil {
			return "", err
		}
		if res.Access == "" {
			return "", apierr.Decode(opRefreshToken, errors.New("response has no access token"))
		}
		if err := c.creds.SetTokens(model.Tokens{Access: res.Access, Refresh: res.Refresh}); err != nil {
			return "", err
		}
		return res.Access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Profile возвращает профиль текущего пользователя.
func (c *Live) Profile(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, request{op: opProfile, method: http.MethodGet, path: config.PathProfile, auth: authRequired}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Dashboard возвращает сводку пользователя.
func (c *Live) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	var d model.Dashboard
	if err := c.do(ctx, request{op: opDashboard, method: http.MethodGet, path: config.PathDashboard, auth: authOptional}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DashboardRealtime возвращает признак появления новых чтений.
func (c *Live) DashboardRealtime(ctx context.Context) (*model.DashboardRealtime, error) {
	var d model.DashboardRealtime
	if err := c.do(ctx, request{op: opRealtime, method: http.MethodGet, path: config.PathDashboardLive, auth: authOptional}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpgradePlan переводит пользователя на другой тарифный план и обновляет сохранённый профиль.
func (c *Live) UpgradePlan(ctx context.Context, planName string) (*model.PlanUpgrade, error) {
	var res model.PlanUpgrade
	err := c.do(ctx, request{
		op:     opUpgradePlan,
		method: http.MethodPost,
		path:   config.PathUpgradePlan,
		body:   upgradePlanRequest{PlanName: planName},
		auth:   authRequired,
	}, &res)
	if err != nil {
		return nil, err
	}
	if err := applyPlan(c.creds, res.Plan); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadImage загружает изображение ладони.
func (c *Live) UploadImage(ctx context.Context, img model.Image) (*model.UploadResult, error) {
	var res model.UploadResult
	err := c.do(ctx, request{
		op:     opUploadImage,
		method: http.MethodPost,
		path:   config.PathPalmUpload,
		image:  &img,
		auth:   authOptional,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// AnalyzeImage отправляет изображение ладони на анализ.
func (c *Live) AnalyzeImage(ctx context.Context, img model.Image) (*model.AnalyzeResult, error) {
	var res model.AnalyzeResult
	err := c.do(ctx, request{
		op:     opAnalyzeImage,
		method: http.MethodPost,
		path:   config.PathPalmAnalyze,
		image:  &img,
		auth:   authOptional,
	}, &res)
	if err != nil {
		return nil, err
	}
	if len(res.Result) == 0 {
		return nil, apierr.Decode(opAnalyzeImage, errors.New("response has no result"))
	}
	return &res, nil
}

// CreateAstrologyReading создаёт астрологическое чтение одним запросом.
func (c *Live) CreateAstrologyReading(ctx context.Context, intake model.AstrologyIntake) (*model.Reading, error) {
	var r model.Reading
	err := c.do(ctx, request{
		op:     opCreateAstrology,
		method: http.MethodPost,
		path:   config.PathAstrologyCreate,
		body:   astrologyRequest{PersonalInfo: intake.Personal, BirthDetails: intake.Birth, Preferences: intake.Preferences},
		auth:   authOptional,
	}, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SubmitPersonalInfo открывает астрологическую сессию.
func (c *Live) SubmitPersonalInfo(ctx context.Context, info model.PersonalInfo) (*model.SessionHandle, error) {
	return c.session(ctx, request{
		op:     opPersonalInfo,
		method: http.MethodPost,
		path:   config.PathPersonalInfo,
		body:   info,
		auth:   authOptional,
	})
}

// SubmitBirthDetails дополняет сессию данными о рождении.
func (c *Live) SubmitBirthDetails(ctx context.Context, sessionID string, birth model.BirthDetails) error {
	return c.do(ctx, request{
		op:     opBirthDetails,
		method: http.MethodPatch,
		path:   config.PathBirthDetails,
		body:   birthDetailsRequest{SessionID: sessionID, BirthDetails: birth},
		auth:   authOptional,
	}, nil)
}

// SubmitPreferences дополняет сессию предпочтениями.
func (c *Live) SubmitPreferences(ctx context.Context, sessionID string, prefs model.Preferences) error {
	return c.do(ctx, request{
		op:     opPreferences,
		method: http.MethodPatch,
		path:   config.PathPreferences,
		body:   preferencesRequest{SessionID: sessionID, Preferences: prefs},
		auth:   authOptional,
	}, nil)
}

// GenerateReading запускает генерацию чтения по сессии.
func (c *Live) GenerateReading(ctx context.Context, sessionID string) (*model.SessionHandle, error) {
	return c.session(ctx, request{
		op:     opGenerate,
		method: http.MethodPost,
		path:   config.PathGenerateReading,
		body:   generateRequest{SessionID: sessionID},
		auth:   authOptional,
	})
}

// StartNumerology запускает нумерологический расчёт.
func (c *Live) StartNumerology(ctx context.Context, req model.NumerologyRequest) (*model.SessionHandle, error) {
	return c.session(ctx, request{
		op:     opNumerology,
		method: http.MethodPost,
		path:   config.PathNumerology,
		body:   req,
		auth:   authOptional,
	})
}

func (c *Live) session(ctx context.Context, req request) (*model.SessionHandle, error) {
	var h model.SessionHandle
	if err := c.do(ctx, req, &h); err != nil {
		return nil, err
	}
	if h.ID == "" {
		return nil, apierr.Decode(req.op, errors.New("response has no session id"))
	}
	return &h, nil
}

// CheckStatus запрашивает статус генерации по адресу из ответа сервера.
func (c *Live) CheckStatus(ctx context.Context, statusURL string) (*model.StatusReport, error) {
	var s model.StatusReport
	err := c.do(ctx, request{op: opCheckStatus, method: http.MethodGet, path: statusURL, auth: authOptional}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchResult забирает результат генерации по адресу из ответа сервера.
func (c *Live) FetchResult(ctx context.Context, resultURL string) (json.RawMessage, error) {
	var env resultEnvelope
	err := c.do(ctx, request{op: opFetchResult, method: http.MethodGet, path: resultURL, auth: authOptional, pending: true}, &env)
	if err != nil {
		return nil, err
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, apierr.Decode(opFetchResult, errors.New("response has no result"))
	}
	return env.Result, nil
}

// ListReadings возвращает страницу истории чтений.
func (c *Live) ListReadings(ctx context.Context, limit, offset int) (*model.ReadingPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var page model.ReadingPage
	err := c.do(ctx, request{op: opListReadings, method: http.MethodGet, path: config.PathReadingsList, query: q, auth: authRequired}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// SaveReading сохраняет чтение в истории пользователя. Требует входа.
func (c *Live) SaveReading(ctx context.Context, req model.SaveReadingRequest) (*model.SaveReadingResponse, error) {
	var res model.SaveReadingResponse
	err := c.do(ctx, request{op: opSaveReading, method: http.MethodPost, path: config.PathReadingsSave, body: req, auth: authRequired}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Predictions возвращает сводку предсказаний из завершённых чтений пользователя.
func (c *Live) Predictions(ctx context.Context) (*model.PredictionList, error) {
	var list model.PredictionList
	if err := c.do(ctx, request{op: opPredictions, method: http.MethodGet, path: config.PathPredictions, auth: authRequired}, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
