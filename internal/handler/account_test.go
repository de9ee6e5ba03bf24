package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/repository"
	"github.com/mmeshcher/palmastro/internal/service"
)

const signupBody = `{"full_name":"Ada Lovelace","email":"ada@palmastro.com","password":"analytical1",
	"confirm_password":"analytical1","accepted_terms":true}`

func TestSignup_Success(t *testing.T) {
	svc := &stubService{signupUser: &model.User{ID: "u7", Email: "ada@palmastro.com"}}
	h := newTestHandler(t, svc)

	w := serve(h, http.MethodPost, "/auth/signup/", []byte(signupBody), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var res model.SignupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !res.Success || res.Data.User.ID != "u7" {
		t.Fatalf("unexpected signup response: %+v", res)
	}
	if id, ok := h.authMiddleware.ParseAccess(res.Data.AccessToken); !ok || id != "u7" {
		t.Fatalf("issued access token is not valid for u7")
	}
}

func TestSignup_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		err       error
		want      int
		wantCalls int
	}{
		{name: "broken json", body: `{`, want: http.StatusBadRequest},
		{
			name: "passwords differ",
			body: `{"full_name":"Ada","email":"ada@palmastro.com","password":"analytical1","confirm_password":"x","accepted_terms":true}`,
			want: http.StatusBadRequest,
		},
		{
			name: "terms not accepted",
			body: `{"full_name":"Ada","email":"ada@palmastro.com","password":"analytical1","confirm_password":"analytical1"}`,
			want: http.StatusBadRequest,
		},
		{name: "duplicate email", body: signupBody, err: fmt.Errorf("%w: ada@palmastro.com", repository.ErrUserExists), want: http.StatusConflict, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{signupErr: tt.err}
			h := newTestHandler(t, svc)
			w := serve(h, http.MethodPost, "/auth/signup/", []byte(tt.body), "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if svc.signupCalls != tt.wantCalls {
				t.Fatalf("service calls = %d, want %d", svc.signupCalls, tt.wantCalls)
			}
		})
	}
}

func TestUpgradePlan(t *testing.T) {
	tests := []struct {
		name string
		res  *model.PlanUpgrade
		err  error
		want int
	}{
		{name: "upgraded", res: &model.PlanUpgrade{Success: true, Plan: model.Plan{Name: "mystic_master"}}, want: http.StatusOK},
		{name: "missing plan", err: service.ErrPlanRequired, want: http.StatusBadRequest},
		{name: "unknown plan", err: fmt.Errorf("%w: gold", service.ErrUnknownPlan), want: http.StatusNotFound},
		{name: "user gone", err: repository.ErrUserNotFound, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{upgrade: tt.res, upgradeErr: tt.err})
			w := serve(h, http.MethodPost, "/auth/upgrade-plan/", []byte(`{"plan_name":"mystic_master"}`), h.authMiddleware.IssueTokens("u1").Access)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	h := newTestHandler(t, &stubService{})
	if w := serve(h, http.MethodPost, "/auth/upgrade-plan/", []byte(`{"plan_name":"mystic_master"}`), ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", w.Code)
	}
}

func TestPredictions_RequiresToken(t *testing.T) {
	svc := &stubService{predictions: &model.PredictionList{Count: 1, Results: []model.Prediction{{Area: "Career"}}}}
	h := newTestHandler(t, svc)

	if w := serve(h, http.MethodGet, "/predictions/get/", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", w.Code)
	}

	w := serve(h, http.MethodGet, "/predictions/get/", nil, h.authMiddleware.IssueTokens("u1").Access)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var res model.PredictionList
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Count != 1 || res.Results[0].Area != "Career" {
		t.Fatalf("unexpected predictions: %+v", res)
	}
}

func TestDashboardRealtime_OptionalAuth(t *testing.T) {
	svc := &stubService{realtime: &model.DashboardRealtime{ReadingsCount: 2, HasUpdates: true}}
	h := newTestHandler(t, svc)

	if w := serve(h, http.MethodGet, "/auth/dashboard/realtime/", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("anonymous status = %d, want 200", w.Code)
	}
	if svc.dashboardID != "" {
		t.Fatalf("anonymous request passed user %q", svc.dashboardID)
	}

	w := serve(h, http.MethodGet, "/auth/dashboard/realtime/", nil, h.authMiddleware.IssueTokens("u1").Access)
	if w.Code != http.StatusOK || svc.dashboardID != "u1" {
		t.Fatalf("status = %d user = %q, want 200 and u1", w.Code, svc.dashboardID)
	}
}
