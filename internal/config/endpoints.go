package config

// Ключи долговременного клиентского хранилища.
const (
	KeyAuthToken    = "palmastro_token"
	KeyRefreshToken = "palmastro_refresh_token"
	KeyUserData     = "palmastro_user"
	KeySettings     = "palmastro_settings"
	KeyMockReadings = "palmastro_mock_readings"
)

// DefaultBaseURL используется, если адрес API не задан.
const DefaultBaseURL = "http://localhost:8000/api/v1"

// Пути API относительно базового адреса.
const (
	PathLogin            = "/auth/login/"
	PathSignup           = "/auth/signup/"
	PathUpgradePlan      = "/auth/upgrade-plan/"
	PathDashboardLive    = "/auth/dashboard/realtime/"
	PathPredictions      = "/predictions/get/"
	PathLogout           = "/auth/logout/"
	PathRefreshToken     = "/auth/token/refresh/"
	PathProfile          = "/auth/profile/"
	PathDashboard        = "/auth/dashboard/"
	PathReadingsList     = "/readings/list/"
	PathReadingsSave     = "/readings/save/"
	PathPalmUpload       = "/readings/palm/upload/"
	PathPalmAnalyze      = "/readings/palm/analyze/"
	PathAstrologyCreate  = "/readings/astrology/"
	PathPersonalInfo     = "/astrology/personal-info/"
	PathBirthDetails     = "/astrology/birth-details/"
	PathPreferences      = "/astrology/preferences/"
	PathGenerateReading  = "/astrology/generate-reading/"
	PathAstrologyStatus  = "/astrology/{id}/status/"
	PathAstrologyResult  = "/astrology/{id}/result/"
	PathNumerology       = "/numerology/"
	PathNumerologyStatus = "/numerology/{id}/status/"
	PathNumerologyResult = "/numerology/{id}/result/"
)

// Политики поведения при исчерпании попыток опроса статуса.
const (
	PollExhaustedFetch = "fetch"
	PollExhaustedFail  = "fail"
)
