package model

import (
	"encoding/json"
	"time"
)

// GenerationStatus описывает статус фоновой генерации на стороне сервера.
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "PENDING"
	GenerationProcessing GenerationStatus = "PROCESSING"
	GenerationCompleted  GenerationStatus = "COMPLETED"
	GenerationFailed     GenerationStatus = "FAILED"
)

// SessionHandle указывает на серверную сессию многошагового ввода или генерации.
type SessionHandle struct {
	ID        string           `json:"session_id"`
	Status    GenerationStatus `json:"status,omitempty"`
	StatusURL string           `json:"status_url,omitempty"`
	ResultURL string           `json:"result_url,omitempty"`
}

// StatusReport описывает ответ на запрос статуса генерации.
type StatusReport struct {
	Status       GenerationStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// PersonalInfo содержит данные первого шага астрологической анкеты.
type PersonalInfo struct {
	Name    string `json:"name"`
	Gender  string `json:"gender"`
	Consent bool   `json:"consent_to_store"`
}

// BirthDetails содержит данные о рождении. Дата в формате YYYY-MM-DD, время HH:MM.
type BirthDetails struct {
	Date     string `json:"birth_date"`
	Time     string `json:"birth_time,omitempty"`
	Place    string `json:"birth_place"`
	Timezone string `json:"timezone,omitempty"`
}

// Preferences содержит предпочтения для генерации чтения.
type Preferences struct {
	FocusAreas   []string `json:"focus_areas"`
	ReadingDepth string   `json:"reading_depth,omitempty"`
	Question     string   `json:"question,omitempty"`
}

// AstrologyIntake объединяет все шаги астрологической анкеты.
type AstrologyIntake struct {
	Personal    PersonalInfo
	Birth       BirthDetails
	Preferences Preferences
}

// NumerologyRequest содержит исходные данные нумерологического расчёта.
type NumerologyRequest struct {
	FullName  string `json:"full_name"`
	BirthDate string `json:"birth_date"`
}

// UploadResult описывает ответ на загрузку изображения.
type UploadResult struct {
	UploadID string `json:"upload_id"`
	ImageURL string `json:"image_url,omitempty"`
}

// AnalyzeResult описывает ответ на анализ изображения ладони.
type AnalyzeResult struct {
	ReadingID string          `json:"reading_id"`
	Result    json.RawMessage `json:"result"`
}

// ReadingPage содержит страницу истории чтений.
type ReadingPage struct {
	Count    int       `json:"count"`
	Next     *string   `json:"next"`
	Previous *string   `json:"previous"`
	Results  []Reading `json:"results"`
}

// SaveReadingRequest описывает запрос на сохранение чтения в истории пользователя.
type SaveReadingRequest struct {
	Kind            ReadingKind     `json:"reading_type"`
	Result          json.RawMessage `json:"result"`
	Accuracy        *float64        `json:"accuracy,omitempty"`
	SourceID        string          `json:"source_id,omitempty"`
	PalmReferenceID string          `json:"palm_reference_id,omitempty"`
}

// SavedReading описывает сохранённое на сервере чтение.
type SavedReading struct {
	ID        string        `json:"id"`
	Kind      ReadingKind   `json:"reading_type"`
	Status    ReadingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// SaveReadingResponse описывает ответ на сохранение чтения.
type SaveReadingResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    SavedReading `json:"data"`
}
