// Package model содержит доменные сущности клиента PalmAstro.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrStatusRegression возвращается при попытке вернуть чтение в более ранний статус.
	ErrStatusRegression = errors.New("reading status cannot regress")
	// ErrIncompleteReading возвращается, если завершённому чтению не хватает результата или точности.
	ErrIncompleteReading = errors.New("completed reading requires result and accuracy")
)

// ReadingKind определяет тип чтения и форму его результата.
type ReadingKind string

const (
	KindPalm       ReadingKind = "palm_analysis"
	KindAstrology  ReadingKind = "astrology_reading"
	KindNumerology ReadingKind = "numerology"
)

// Valid сообщает, является ли тип чтения известным.
func (k ReadingKind) Valid() bool {
	switch k {
	case KindPalm, KindAstrology, KindNumerology:
		return true
	}
	return false
}

// ReadingStatus описывает жизненный цикл чтения.
type ReadingStatus string

const (
	StatusPending   ReadingStatus = "pending"
	StatusAnalyzing ReadingStatus = "analyzing"
	StatusCompleted ReadingStatus = "completed"
	StatusFailed    ReadingStatus = "failed"
)

func (s ReadingStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAnalyzing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// Terminal сообщает, является ли статус конечным.
func (s ReadingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo проверяет допустимость перехода pending → analyzing → {completed|failed}.
func (s ReadingStatus) CanAdvanceTo(next ReadingStatus) bool {
	if next.rank() < 0 {
		return false
	}
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Reading описывает одно чтение (ладонь, астрология или нумерология).
type Reading struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user,omitempty"`
	Kind            ReadingKind     `json:"type"`
	Status          ReadingStatus   `json:"status"`
	Accuracy        *float64        `json:"accuracy,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Result          json.RawMessage `json:"results,omitempty"`
	SourceID        string          `json:"source_id,omitempty"`
	PalmReferenceID string          `json:"palm_reference_id,omitempty"`
	Display         *DisplayFields  `json:"display,omitempty"`
}

// NewReading создаёт чтение в статусе pending.
func NewReading(id string, kind ReadingKind, now time.Time) *Reading {
	return &Reading{
		ID:        id,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance переводит чтение в новый статус, не допуская регресса.
func (r *Reading) Advance(next ReadingStatus, now time.Time) error {
	if !r.Status.CanAdvanceTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, r.Status, next)
	}
	if r.Status != next {
		r.Status = next
		r.UpdatedAt = now
	}
	if next != StatusCompleted {
		r.Accuracy = nil
	}
	return nil
}

// Complete завершает чтение с результатом и точностью, приведённой к диапазону 0..100.
func (r *Reading) Complete(result json.RawMessage, accuracy float64, now time.Time) error {
	if err := r.Advance(StatusCompleted, now); err != nil {
		return err
	}
	acc := ClampAccuracy(accuracy)
	r.Accuracy = &acc
	r.Result = result
	return nil
}

// Fail переводит чтение в статус failed.
func (r *Reading) Fail(now time.Time) error {
	return r.Advance(StatusFailed, now)
}

// Clone возвращает независимую копию чтения.
func (r Reading) Clone() Reading {
	c := r
	if r.Accuracy != nil {
		v := *r.Accuracy
		c.Accuracy = &v
	}
	if r.Result != nil {
		c.Result = append(json.RawMessage(nil), r.Result...)
	}
	if r.Display != nil {
		d := r.Display.clone()
		c.Display = &d
	}
	return c
}

// ClampAccuracy округляет точность и ограничивает её диапазоном 0..100.
func ClampAccuracy(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	return math.Max(0, math.Min(100, v))
}

// ReadingPatch описывает частичное обновление чтения. Пустые поля не меняются.
type ReadingPatch struct {
	Status          *ReadingStatus
	Accuracy        *float64
	Result          json.RawMessage
	PalmReferenceID *string
	Display         *DisplayFields
}

// Apply применяет изменения к копии чтения и возвращает её.
// Завершённое чтение после изменений обязано иметь непустой результат и точность.
func (p ReadingPatch) Apply(r Reading, now time.Time) (Reading, error) {
	out := r.Clone()
	if p.Result != nil {
		out.Result = p.Result
	}

	switch {
	case p.Status != nil && *p.Status == StatusCompleted && out.Status != StatusCompleted:
		acc := p.Accuracy
		if acc == nil || !hasResult(out.Result) {
			return r, fmt.Errorf("%w: %s", ErrIncompleteReading, r.ID)
		}
		if err := out.Complete(out.Result, *acc, now); err != nil {
			return r, err
		}
	case p.Status != nil:
		if err := out.Advance(*p.Status, now); err != nil {
			return r, err
		}
		fallthrough
	default:
		if p.Accuracy != nil && out.Status == StatusCompleted {
			acc := ClampAccuracy(*p.Accuracy)
			out.Accuracy = &acc
		}
	}

	if out.Status == StatusCompleted && (out.Accuracy == nil || !hasResult(out.Result)) {
		return r, fmt.Errorf("%w: %s", ErrIncompleteReading, r.ID)
	}

	if p.PalmReferenceID != nil {
		out.PalmReferenceID = *p.PalmReferenceID
	}
	if p.Display != nil {
		d := p.Display.clone()
		out.Display = &d
	}
	out.UpdatedAt = now
	return out, nil
}

func hasResult(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// DisplayFields содержит производные поля для отображения. Они не являются частью результата.
type DisplayFields struct {
	Compatibility []CompatibilityMatch `json:"compatibility,omitempty"`
	Traits        []TraitScore         `json:"traits,omitempty"`
}

func (d DisplayFields) clone() DisplayFields {
	return DisplayFields{
		Compatibility: append([]CompatibilityMatch(nil), d.Compatibility...),
		Traits:        append([]TraitScore(nil), d.Traits...),
	}
}

// CompatibilityMatch описывает совместимость со знаком зодиака.
type CompatibilityMatch struct {
	Sign        string `json:"sign"`
	Match       int    `json:"match"`
	Label       string `json:"type"`
	Description string `json:"description,omitempty"`
}

// TraitScore описывает оценку черты характера.
type TraitScore struct {
	Name        string `json:"name"`
	Score       int    `json:"score"`
	Description string `json:"description,omitempty"`
}

// Image содержит загружаемое изображение ладони.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}
