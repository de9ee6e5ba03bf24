package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/middleware"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/repository"
	"github.com/mmeshcher/palmastro/internal/service"
	"github.com/mmeshcher/palmastro/internal/validation"
)

// Signup регистрирует пользователя и сразу выдаёт ему пару токенов.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := validation.ValidateSignup(req); err != nil {
		h.writeInvalid(w, err)
		return
	}

	u, err := h.service.Signup(r.Context(), req)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, "user with this email already exists", http.StatusConflict)
			return
		}
		h.internalError(w, "signup user error", err)
		return
	}

	tokens := h.authMiddleware.IssueTokens(u.ID)
	h.writeJSON(w, http.StatusCreated, model.SignupResponse{
		Success: true,
		Message: "Account created successfully.",
		Data:    model.SignupData{User: *u, AccessToken: tokens.Access, RefreshToken: tokens.Refresh},
	})
}

type upgradePlanRequest struct {
	PlanName string `json:"plan_name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// UpgradePlan переводит текущего пользователя на другой тарифный план.
func (h *Handler) UpgradePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req upgradePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.UpgradePlan(r.Context(), userID, req.PlanName)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, res)
	case errors.Is(err, service.ErrPlanRequired):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrUnknownPlan):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Plan '" + req.PlanName + "' not found"})
	case errors.Is(err, repository.ErrUserNotFound):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	default:
		h.internalError(w, "upgrade plan error", err, zap.String("user_id", userID))
	}
}

// DashboardRealtime отвечает на частый опрос признаком появления новых чтений.
func (h *Handler) DashboardRealtime(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	res, err := h.service.DashboardRealtime(r.Context(), userID)
	if err != nil {
		h.internalError(w, "dashboard realtime error", err, zap.String("user_id", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Predictions возвращает самые уверенные предсказания из истории пользователя.
func (h *Handler) Predictions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	res, err := h.service.Predictions(r.Context(), userID)
	if err != nil {
		h.internalError(w, "get predictions error", err, zap.String("user_id", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}
