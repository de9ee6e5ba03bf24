// Package handler содержит HTTP-обработчики dev-сервера PalmAstro.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/middleware"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/repository"
	"github.com/mmeshcher/palmastro/internal/service"
	"github.com/mmeshcher/palmastro/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Login(ctx context.Context, email, password string) (*model.User, error)
	Signup(ctx context.Context, req model.SignupRequest) (*model.User, error)
	Profile(ctx context.Context, userID string) (*model.User, error)
	UpgradePlan(ctx context.Context, userID, planName string) (*model.PlanUpgrade, error)
	Dashboard(ctx context.Context, userID string) (*model.Dashboard, error)
	DashboardRealtime(ctx context.Context, userID string) (*model.DashboardRealtime, error)

	Upload(img model.Image) model.UploadResult
	AnalyzePalm(img model.Image) model.AnalyzeResult
	CreateAstrology(intake model.AstrologyIntake) (*model.Reading, error)

	OpenAstrology(info model.PersonalInfo) model.SessionHandle
	UpdateBirthDetails(id string, birth model.BirthDetails) error
	UpdatePreferences(id string, prefs model.Preferences) error
	Generate(id string) (model.SessionHandle, error)
	StartNumerology(req model.NumerologyRequest) model.SessionHandle
	Status(kind model.ReadingKind, id string) (model.StatusReport, error)
	Result(kind model.ReadingKind, id string) (json.RawMessage, model.GenerationStatus, error)

	SaveReading(ctx context.Context, userID string, req model.SaveReadingRequest) (*model.SavedReading, error)
	ListReadings(ctx context.Context, userID string, limit, offset int) (*model.ReadingPage, error)
	Predictions(ctx context.Context, userID string) (*model.PredictionList, error)
}

// Handler реализует HTTP-обработчики dev-сервера PalmAstro.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	now            func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		now:            time.Now,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

// writeInvalid отвечает 400 со списком проблем по полям.
func (h *Handler) writeInvalid(w http.ResponseWriter, err error) {
	var vErr *validation.Error
	if !errors.As(err, &vErr) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	fields := make(map[string]string, len(vErr.Fields))
	for _, f := range vErr.Fields {
		fields[f.Field] = f.Message
	}
	h.writeJSON(w, http.StatusBadRequest, fields)
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	h.logger.Error(msg, append(fields, zap.Error(err))...)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и выдаёт пару токенов.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := validation.ValidateCredentials(req.Email, req.Password); err != nil {
		h.writeInvalid(w, err)
		return
	}

	u, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.internalError(w, "login user error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, model.LoginResult{
		User:   *u,
		Tokens: h.authMiddleware.IssueTokens(u.ID),
	})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Refresh обменивает refresh-токен на новую пару токенов.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, ok := h.authMiddleware.ParseRefresh(req.Refresh)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.writeJSON(w, http.StatusOK, h.authMiddleware.IssueTokens(userID))
}

// Logout подтверждает выход. Токены не хранятся на сервере, поэтому отзывать нечего.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if userID, ok := h.authMiddleware.ParseRefresh(req.Refresh); ok {
		h.logger.Info("user logged out", zap.String("user_id", userID))
	}
	w.WriteHeader(http.StatusOK)
}

// Profile возвращает профиль текущего пользователя.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	u, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.internalError(w, "get profile error", err, zap.String("user_id", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, u)
}

// Dashboard возвращает сводку. Анонимный запрос получает демонстрационные данные.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	d, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.internalError(w, "get dashboard error", err, zap.String("user_id", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, d)
}

// readImage извлекает изображение из multipart-поля image и проверяет его.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) (model.Image, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxImageSize+1<<20)
	if err := r.ParseMultipartForm(validation.MaxImageSize); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return model.Image{}, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return model.Image{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, validation.MaxImageSize+1))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return model.Image{}, false
	}

	img := model.Image{Name: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data}
	detected, err := validation.ValidateImage(img)
	if err != nil {
		h.writeInvalid(w, err)
		return model.Image{}, false
	}
	img.ContentType = detected
	return img, true
}

// UploadPalm принимает изображение ладони.
func (h *Handler) UploadPalm(w http.ResponseWriter, r *http.Request) {
	img, ok := h.readImage(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusCreated, h.service.Upload(img))
}

// AnalyzePalm анализирует изображение ладони.
func (h *Handler) AnalyzePalm(w http.ResponseWriter, r *http.Request) {
	img, ok := h.readImage(w, r)
	if !ok {
		return
	}

	res := h.service.AnalyzePalm(img)
	h.logger.Info("palm analyzed", zap.String("reading_id", res.ReadingID), zap.Int("bytes", len(img.Data)))
	h.writeJSON(w, http.StatusOK, res)
}

// SaveReading сохраняет чтение в истории текущего пользователя.
func (h *Handler) SaveReading(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req model.SaveReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	saved, err := h.service.SaveReading(r.Context(), userID, req)
	switch {
	case errors.Is(err, service.ErrInvalidReading):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, repository.ErrReadingExists):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		return
	case errors.Is(err, repository.ErrUserNotFound):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	case err != nil:
		h.internalError(w, "save reading error", err, zap.String("user_id", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, model.SaveReadingResponse{
		Success: true,
		Message: "Reading saved successfully",
		Data:    *saved,
	})
}

func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func pageLink(path string, limit, offset int) *string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	link := path + "?" + q.Encode()
	return &link
}

// ListReadings возвращает страницу истории текущего пользователя.
func (h *Handler) ListReadings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	limit, err := queryInt(q, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	offset, err := queryInt(q, "offset")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := h.service.ListReadings(r.Context(), userID, limit, offset)
	if err != nil {
		h.internalError(w, "list readings error", err, zap.String("user_id", userID))
		return
	}

	if limit > 0 {
		if offset+len(page.Results) < page.Count {
			page.Next = pageLink(r.URL.Path, limit, offset+limit)
		}
		if offset > 0 {
			page.Previous = pageLink(r.URL.Path, limit, max(offset-limit, 0))
		}
	}

	h.writeJSON(w, http.StatusOK, page)
}
