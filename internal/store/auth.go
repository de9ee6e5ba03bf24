package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/credentials"
	"github.com/mmeshcher/palmastro/internal/fixtures"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/validation"
)

// AuthAPI описывает операции API, нужные для управления пользователем.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*model.LoginResult, error)
	Signup(ctx context.Context, req model.SignupRequest) (*model.SignupResponse, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*model.User, error)
	UpgradePlan(ctx context.Context, planName string) (*model.PlanUpgrade, error)
}

// Auth хранит проекцию текущего пользователя.
type Auth struct {
	api    AuthAPI
	creds  *credentials.Session
	logger *zap.Logger

	mu   sync.RWMutex
	user *model.User
}

// NewAuth создаёт хранилище пользователя.
func NewAuth(api AuthAPI, creds *credentials.Session, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{api: api, creds: creds, logger: logger}
}

// Login проверяет учётные данные, выполняет вход и заменяет пользователя целиком.
func (a *Auth) Login(ctx context.Context, email, password string) (*model.User, error) {
	if err := validation.ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	res, err := a.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	u := res.User
	a.mu.Lock()
	a.user = &u
	a.mu.Unlock()

	a.logger.Info("user logged in", zap.String("user_id", u.ID))
	out := u
	return &out, nil
}

// Signup проверяет форму регистрации до обращения к API и делает
// зарегистрированного пользователя текущим.
func (a *Auth) Signup(ctx context.Context, req model.SignupRequest) (*model.User, error) {
	if err := validation.ValidateSignup(req); err != nil {
		return nil, err
	}

	res, err := a.api.Signup(ctx, req)
	if err != nil {
		return nil, err
	}

	u := res.Data.User
	a.mu.Lock()
	a.user = &u
	a.mu.Unlock()

	a.logger.Info("user signed up", zap.String("user_id", u.ID))
	out := u
	return &out, nil
}

// UpgradePlan меняет тарифный план и отражает его в текущем пользователе.
func (a *Auth) UpgradePlan(ctx context.Context, planName string) (*model.PlanUpgrade, error) {
	if err := validation.ValidatePlanName(planName); err != nil {
		return nil, err
	}

	res, err := a.api.UpgradePlan(ctx, planName)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.user != nil {
		a.user.Plan = res.Plan.Name
		a.user.IsPremium = fixtures.IsPremiumPlan(res.Plan.Name)
	}
	a.mu.Unlock()

	a.logger.Info("plan upgraded", zap.String("plan", res.Plan.Name))
	return res, nil
}

// Logout выходит из системы. Локальное состояние очищается даже при ошибке сервера.
func (a *Auth) Logout(ctx context.Context) error {
	err := a.api.Logout(ctx)
	if err != nil {
		a.logger.Warn("logout request failed", zap.Error(err))
	}

	a.mu.Lock()
	a.user = nil
	a.mu.Unlock()

	if clearErr := a.creds.Clear(); clearErr != nil {
		return clearErr
	}
	return nil
}

// RefreshProfile запрашивает профиль и переносит его поля в текущего пользователя.
func (a *Auth) RefreshProfile(ctx context.Context) (*model.User, error) {
	fresh, err := a.api.Profile(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.user == nil {
		u := *fresh
		a.user = &u
	} else {
		a.user.Merge(*fresh)
	}
	u := *a.user
	a.mu.Unlock()

	if err := a.creds.SaveUser(u); err != nil {
		a.logger.Warn("failed to persist user snapshot", zap.Error(err))
	}
	return &u, nil
}

// Restore восстанавливает пользователя из сохранённого снимка, если есть токен доступа.
func (a *Auth) Restore() (*model.User, bool, error) {
	if !a.creds.Authenticated() {
		return nil, false, nil
	}
	u, ok, err := a.creds.User()
	if err != nil || !ok {
		return nil, false, err
	}

	a.mu.Lock()
	a.user = u
	a.mu.Unlock()

	out := *u
	return &out, true, nil
}

// CurrentUser возвращает копию текущего пользователя.
func (a *Auth) CurrentUser() (model.User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return model.User{}, false
	}
	return *a.user, true
}
