package fixtures

import (
	"encoding/json"
	"time"

	"github.com/mmeshcher/palmastro/internal/model"
)

// AstrologyAccuracy задаёт точность симулированного астрологического чтения.
const AstrologyAccuracy = 0.91

// ZodiacSigns перечисляет знаки зодиака по порядку.
var ZodiacSigns = []string{
	"Aries", "Taurus", "Gemini", "Cancer", "Leo", "Virgo",
	"Libra", "Scorpio", "Sagittarius", "Capricorn", "Aquarius", "Pisces",
}

// AstrologyResult описывает результат астрологического чтения.
type AstrologyResult struct {
	SunSign            string   `json:"sun_sign"`
	MoonSign           string   `json:"moon_sign"`
	RisingSign         string   `json:"rising_sign"`
	PersonalitySummary string   `json:"personality_summary"`
	LifePath           string   `json:"life_path"`
	Relationships      string   `json:"relationships"`
	Career             string   `json:"career"`
	FocusAreas         []string `json:"focus_areas,omitempty"`
	Note               string   `json:"note"`
	Accuracy           struct {
		Overall float64 `json:"overall"`
	} `json:"accuracy"`
}

type dayRange struct {
	month time.Month
	day   int
	sign  string
}

// Границы знаков по первому дню: знак действует с указанной даты.
var sunSignStarts = []dayRange{
	{time.January, 20, "Aquarius"},
	{time.February, 19, "Pisces"},
	{time.March, 21, "Aries"},
	{time.April, 20, "Taurus"},
	{time.May, 21, "Gemini"},
	{time.June, 21, "Cancer"},
	{time.July, 23, "Leo"},
	{time.August, 23, "Virgo"},
	{time.September, 23, "Libra"},
	{time.October, 23, "Scorpio"},
	{time.November, 22, "Sagittarius"},
	{time.December, 22, "Capricorn"},
}

// SunSign возвращает приблизительный солнечный знак для даты рождения.
func SunSign(birth time.Time) string {
	sign := "Capricorn"
	for _, r := range sunSignStarts {
		if birth.Month() > r.month || (birth.Month() == r.month && birth.Day() >= r.day) {
			sign = r.sign
		}
	}
	return sign
}

// MoonAndRising возвращает приблизительные лунный знак и асцендент по часу рождения.
// Без времени рождения используется полдень.
func MoonAndRising(hour int, known bool) (string, string) {
	if !known {
		hour = 12
	}
	hour = ((hour % 24) + 24) % 24
	return ZodiacSigns[(hour/2)%12], ZodiacSigns[(hour/2+3)%12]
}

// Astrology строит астрологический результат по данным анкеты.
// Некорректные дата или время заменяются значениями по умолчанию.
func Astrology(birth model.BirthDetails, prefs model.Preferences) AstrologyResult {
	date, err := time.Parse(time.DateOnly, birth.Date)
	if err != nil {
		date = time.Date(1990, time.August, 1, 0, 0, 0, 0, time.UTC)
	}

	hour, known := 0, false
	if t, err := time.Parse("15:04", birth.Time); err == nil {
		hour, known = t.Hour(), true
	}
	moon, rising := MoonAndRising(hour, known)

	res := AstrologyResult{
		SunSign:            SunSign(date),
		MoonSign:           moon,
		RisingSign:         rising,
		PersonalitySummary: "You are a natural leader with deep emotional intelligence and excellent communication skills.",
		LifePath:           "Your path involves creative self-expression and helping others realize their potential.",
		Relationships:      "You seek deep, transformative connections and are fiercely loyal to those you love.",
		Career:             "Success comes through leadership roles, creative pursuits, or fields involving communication.",
		FocusAreas:         append([]string(nil), prefs.FocusAreas...),
		Note:               "Approximate chart based on simplified rules; not a full ephemeris.",
	}
	res.Accuracy.Overall = AstrologyAccuracy
	return res
}

// AstrologyJSON возвращает астрологический результат в виде JSON.
func AstrologyJSON(birth model.BirthDetails, prefs model.Preferences) json.RawMessage {
	return mustJSON(Astrology(birth, prefs))
}
