package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/service"
	"github.com/mmeshcher/palmastro/internal/validation"
)

type astrologyRequest struct {
	model.PersonalInfo
	model.BirthDetails
	model.Preferences
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

type pendingResponse struct {
	Status model.GenerationStatus `json:"status"`
}

type resultResponse struct {
	Result json.RawMessage `json:"result"`
}

// writeSessionError отвечает на ошибку работы с сессией.
func (h *Handler) writeSessionError(w http.ResponseWriter, err error, sessionID string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, service.ErrSessionGenerating):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.internalError(w, "session error", err, zap.String("session_id", sessionID))
	}
}

// CreateAstrology создаёт астрологическое чтение одним запросом.
func (h *Handler) CreateAstrology(w http.ResponseWriter, r *http.Request) {
	var req astrologyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := errors.Join(
		validation.ValidatePersonalInfo(req.PersonalInfo),
		validation.ValidateBirthDetails(req.BirthDetails, h.now()),
		validation.ValidatePreferences(req.Preferences),
	)
	if err != nil {
		h.writeInvalidAll(w, err)
		return
	}

	reading, err := h.service.CreateAstrology(model.AstrologyIntake{
		Personal:    req.PersonalInfo,
		Birth:       req.BirthDetails,
		Preferences: req.Preferences,
	})
	if err != nil {
		h.internalError(w, "create astrology reading error", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, reading)
}

// writeInvalidAll объединяет проблемы нескольких проверок в один ответ 400.
func (h *Handler) writeInvalidAll(w http.ResponseWriter, err error) {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		h.writeInvalid(w, err)
		return
	}
	merged := &validation.Error{}
	for _, e := range joined.Unwrap() {
		var vErr *validation.Error
		if errors.As(e, &vErr) {
			merged.Fields = append(merged.Fields, vErr.Fields...)
		}
	}
	h.writeInvalid(w, merged)
}

// PersonalInfo открывает астрологическую сессию.
func (h *Handler) PersonalInfo(w http.ResponseWriter, r *http.Request) {
	var req model.PersonalInfo
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := validation.ValidatePersonalInfo(req); err != nil {
		h.writeInvalid(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, h.service.OpenAstrology(req))
}

// BirthDetails дополняет сессию данными о рождении.
func (h *Handler) BirthDetails(w http.ResponseWriter, r *http.Request) {
	var req birthDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := validation.ValidateBirthDetails(req.BirthDetails, h.now()); err != nil {
		h.writeInvalid(w, err)
		return
	}

	if err := h.service.UpdateBirthDetails(req.SessionID, req.BirthDetails); err != nil {
		h.writeSessionError(w, err, req.SessionID)
		return
	}

	h.writeJSON(w, http.StatusOK, model.SessionHandle{ID: req.SessionID})
}

// Preferences дополняет сессию предпочтениями.
func (h *Handler) Preferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := validation.ValidatePreferences(req.Preferences); err != nil {
		h.writeInvalid(w, err)
		return
	}

	if err := h.service.UpdatePreferences(req.SessionID, req.Preferences); err != nil {
		h.writeSessionError(w, err, req.SessionID)
		return
	}

	h.writeJSON(w, http.StatusOK, model.SessionHandle{ID: req.SessionID})
}

// GenerateReading запускает генерацию астрологического чтения.
func (h *Handler) GenerateReading(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	handle, err := h.service.Generate(req.SessionID)
	if err != nil {
		h.writeSessionError(w, err, req.SessionID)
		return
	}

	h.writeJSON(w, http.StatusAccepted, handle)
}

// Numerology запускает нумерологический расчёт.
func (h *Handler) Numerology(w http.ResponseWriter, r *http.Request) {
	var req model.NumerologyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := validation.ValidateNumerology(req, h.now()); err != nil {
		h.writeInvalid(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, h.service.StartNumerology(req))
}

// Status возвращает обработчик статуса генерации для указанного типа чтения.
func (h *Handler) Status(kind model.ReadingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rep, err := h.service.Status(kind, id)
		if err != nil {
			h.writeSessionError(w, err, id)
			return
		}

		h.writeJSON(w, http.StatusOK, rep)
	}
}

// Result возвращает обработчик результата генерации. Незавершённая генерация отвечает 202.
func (h *Handler) Result(kind model.ReadingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		raw, status, err := h.service.Result(kind, id)
		if errors.Is(err, service.ErrResultNotReady) {
			h.writeJSON(w, http.StatusAccepted, pendingResponse{Status: status})
			return
		}
		if err != nil {
			h.writeSessionError(w, err, id)
			return
		}

		h.writeJSON(w, http.StatusOK, resultResponse{Result: raw})
	}
}
