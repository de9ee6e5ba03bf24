// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/mmeshcher/palmastro/internal/fixtures"
	"github.com/mmeshcher/palmastro/internal/model"
)

// MaxImageSize ограничивает размер изображения ладони.
const MaxImageSize = 10 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// FieldError описывает проблему с одним полем.
type FieldError struct {
	Field   string
	Message string
}

// Error перечисляет проблемы входных данных.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

type collector struct {
	fields []FieldError
}

func (c *collector) add(field, format string, args ...any) {
	c.fields = append(c.fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &Error{Fields: c.fields}
}

// ValidateCredentials проверяет адрес электронной почты и пароль.
func ValidateCredentials(email, password string) error {
	var c collector
	validateEmail(&c, email)
	if password == "" {
		c.add("password", "is required")
	}
	return c.err()
}

// MinPasswordLength задаёт минимальную длину пароля при регистрации.
const MinPasswordLength = 8

// ValidateSignup проверяет форму регистрации: имя, адрес, совпадение паролей и согласие с условиями.
func ValidateSignup(req model.SignupRequest) error {
	var c collector
	if strings.TrimSpace(req.FullName) == "" {
		c.add("full_name", "is required")
	} else if len(req.FullName) > 255 {
		c.add("full_name", "must be at most 255 characters")
	}
	validateEmail(&c, req.Email)
	switch {
	case req.Password == "":
		c.add("password", "is required")
	case len(req.Password) < MinPasswordLength:
		c.add("password", "must be at least %d characters", MinPasswordLength)
	}
	if req.ConfirmPassword != req.Password {
		c.add("confirm_password", "passwords do not match")
	}
	if !req.AcceptedTerms {
		c.add("accepted_terms", "terms of service must be accepted")
	}
	return c.err()
}

// ValidatePlanName проверяет, что план указан и есть в каталоге.
func ValidatePlanName(name string) error {
	var c collector
	if strings.TrimSpace(name) == "" {
		c.add("plan_name", "is required")
	} else if _, ok := fixtures.FindPlan(name); !ok {
		c.add("plan_name", "unknown plan %q", name)
	}
	return c.err()
}

// ValidateImage проверяет изображение ладони и возвращает его MIME-тип,
// определённый по содержимому.
func ValidateImage(img model.Image) (string, error) {
	var c collector
	if len(img.Data) == 0 {
		c.add("image", "is empty")
		return "", c.err()
	}
	if len(img.Data) > MaxImageSize {
		c.add("image", "exceeds %d bytes", MaxImageSize)
	}
	detected := http.DetectContentType(img.Data)
	if !allowedImageTypes[detected] {
		c.add("image", "unsupported type %s", detected)
	}
	return detected, c.err()
}

// ValidatePersonalInfo проверяет данные первого шага астрологической анкеты.
func ValidatePersonalInfo(info model.PersonalInfo) error {
	var c collector
	name := strings.TrimSpace(info.Name)
	if name == "" {
		c.add("name", "is required")
	} else if len(name) > 100 {
		c.add("name", "must be at most 100 characters")
	}
	return c.err()
}

// ValidateBirthDetails проверяет дату, время и место рождения.
func ValidateBirthDetails(b model.BirthDetails, now time.Time) error {
	var c collector
	validateDate(&c, "birth_date", b.Date, now)
	if b.Time != "" {
		if _, err := time.Parse("15:04", b.Time); err != nil {
			c.add("birth_time", "must be HH:MM")
		}
	}
	if strings.TrimSpace(b.Place) == "" {
		c.add("birth_place", "is required")
	}
	if b.Timezone != "" {
		if _, err := time.LoadLocation(b.Timezone); err != nil {
			c.add("timezone", "unknown timezone %q", b.Timezone)
		}
	}
	return c.err()
}

// ValidatePreferences проверяет предпочтения чтения.
func ValidatePreferences(p model.Preferences) error {
	var c collector
	for _, area := range p.FocusAreas {
		if strings.TrimSpace(area) == "" {
			c.add("focus_areas", "must not contain empty values")
			break
		}
	}
	if len(p.Question) > 500 {
		c.add("question", "must be at most 500 characters")
	}
	return c.err()
}

// ValidateNumerology проверяет имя и дату рождения для нумерологического расчёта.
func ValidateNumerology(req model.NumerologyRequest, now time.Time) error {
	var c collector
	if fixtures.NormalizeName(req.FullName) == "" {
		c.add("full_name", "must contain latin letters")
	}
	validateDate(&c, "birth_date", req.BirthDate, now)
	return c.err()
}

func validateEmail(c *collector, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		c.add("email", "is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		c.add("email", "is not a valid address")
	}
}

func validateDate(c *collector, field, value string, now time.Time) {
	if value == "" {
		c.add(field, "is required")
		return
	}
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		c.add(field, "must be YYYY-MM-DD")
		return
	}
	if d.After(now) {
		c.add(field, "must not be in the future")
	}
}
