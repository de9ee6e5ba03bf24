package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mmeshcher/palmastro/internal/config"
	custommiddleware "github.com/mmeshcher/palmastro/internal/middleware"
	"github.com/mmeshcher/palmastro/internal/model"
)

// APIPrefix задаёт префикс всех маршрутов API.
const APIPrefix = "/api/v1"

// SetupRouter настраивает HTTP-маршруты и middleware dev-сервера.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route(APIPrefix, func(r chi.Router) {
		r.Post(config.PathLogin, h.Login)
		r.Post(config.PathSignup, h.Signup)
		r.Post(config.PathLogout, h.Logout)
		r.Post(config.PathRefreshToken, h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get(config.PathProfile, h.Profile)
			r.Post(config.PathUpgradePlan, h.UpgradePlan)
			r.Get(config.PathPredictions, h.Predictions)
			r.Get(config.PathReadingsList, h.ListReadings)
			r.Post(config.PathReadingsSave, h.SaveReading)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Optional)

			r.Get(config.PathDashboard, h.Dashboard)
			r.Get(config.PathDashboardLive, h.DashboardRealtime)

			r.Post(config.PathPalmUpload, h.UploadPalm)
			r.Post(config.PathPalmAnalyze, h.AnalyzePalm)
			r.Post(config.PathAstrologyCreate, h.CreateAstrology)

			r.Post(config.PathPersonalInfo, h.PersonalInfo)
			r.Patch(config.PathBirthDetails, h.BirthDetails)
			r.Patch(config.PathPreferences, h.Preferences)
			r.Post(config.PathGenerateReading, h.GenerateReading)
			r.Get(config.PathAstrologyStatus, h.Status(model.KindAstrology))
			r.Get(config.PathAstrologyResult, h.Result(model.KindAstrology))

			r.Post(config.PathNumerology, h.Numerology)
			r.Get(config.PathNumerologyStatus, h.Status(model.KindNumerology))
			r.Get(config.PathNumerologyResult, h.Result(model.KindNumerology))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
