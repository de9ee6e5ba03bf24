package model

import (
	"strings"
	"time"
)

// User представляет клиентскую проекцию пользователя.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username,omitempty"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	Plan          string    `json:"current_plan,omitempty"`
	IsPremium     bool      `json:"is_premium"`
	TotalReadings int       `json:"total_readings"`
	AccuracyScore float64   `json:"accuracy_score"`
	MemberSince   time.Time `json:"member_since"`
}

// DisplayName возвращает отображаемое имя пользователя.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	switch {
	case full != "":
		return full
	case u.Username != "":
		return u.Username
	}
	return u.Email
}

// Merge переносит заполненные поля профиля из fresh в u.
func (u *User) Merge(fresh User) {
	if fresh.ID != "" {
		u.ID = fresh.ID
	}
	if fresh.Email != "" {
		u.Email = fresh.Email
	}
	if fresh.Username != "" {
		u.Username = fresh.Username
	}
	if fresh.FirstName != "" {
		u.FirstName = fresh.FirstName
	}
	if fresh.LastName != "" {
		u.LastName = fresh.LastName
	}
	if fresh.Plan != "" {
		u.Plan = fresh.Plan
	}
	if !fresh.MemberSince.IsZero() {
		u.MemberSince = fresh.MemberSince
	}
	u.IsPremium = fresh.IsPremium
	u.TotalReadings = fresh.TotalReadings
	u.AccuracyScore = fresh.AccuracyScore
}

// Tokens содержит пару токенов доступа.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginResult описывает ответ на вход в систему.
type LoginResult struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}

// Dashboard содержит сводку для панели пользователя.
type Dashboard struct {
	RecentReadings []Reading     `json:"recent_readings"`
	WeeklyActivity []DayActivity `json:"weekly_activity"`
	UserStats      UserStats     `json:"user_stats"`
}

// DayActivity описывает активность за один день недели.
type DayActivity struct {
	Day      string  `json:"day"`
	Readings int     `json:"readings"`
	Accuracy float64 `json:"accuracy"`
}

// UserStats содержит агрегированную статистику пользователя.
type UserStats struct {
	TotalReadings       int       `json:"total_readings"`
	ReadingsThisMonth   int       `json:"readings_this_month"`
	ReadingsThisWeek    int       `json:"readings_this_week"`
	AverageAccuracy     float64   `json:"average_accuracy"`
	FavoriteReadingType string    `json:"favorite_reading_type"`
	MemberSince         time.Time `json:"member_since"`
}

// SignupRequest описывает регистрацию нового пользователя.
type SignupRequest struct {
	FullName            string `json:"full_name"`
	Email               string `json:"email"`
	Password            string `json:"password"`
	ConfirmPassword     string `json:"confirm_password"`
	AcceptedTerms       bool   `json:"accepted_terms"`
	SubscribeNewsletter bool   `json:"subscribe_newsletter,omitempty"`
}

// SignupData содержит созданного пользователя и выданные токены.
type SignupData struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// SignupResponse описывает ответ на регистрацию.
type SignupResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    SignupData `json:"data"`
}

// Plan описывает тарифный план.
type Plan struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Features    []string `json:"features"`
}

// PlanUpgrade описывает ответ на смену тарифного плана.
type PlanUpgrade struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Plan    Plan   `json:"plan"`
}

// Prediction описывает предсказание, извлечённое из сохранённого чтения.
type Prediction struct {
	ReadingID   string      `json:"id"`
	Kind        ReadingKind `json:"reading_type"`
	ReadingDate time.Time   `json:"reading_date"`
	Area        string      `json:"area"`
	Timeframe   string      `json:"timeframe"`
	Prediction  string      `json:"prediction"`
	Confidence  float64     `json:"confidence"`
}

// PredictionList содержит предсказания пользователя, от более уверенных к менее.
type PredictionList struct {
	Count   int          `json:"count"`
	Results []Prediction `json:"results"`
}

// DashboardRealtime сообщает, появились ли новые чтения с момента последнего обновления.
type DashboardRealtime struct {
	LastUpdate    *time.Time `json:"last_update"`
	HasUpdates    bool       `json:"has_updates"`
	ReadingsCount int        `json:"readings_count"`
	Timestamp     time.Time  `json:"timestamp"`
}
