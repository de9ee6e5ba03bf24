// Package fixtures содержит заготовленные ответы для симулированного режима API.
package fixtures

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/palmastro/internal/model"
)

// DemoEmail используется симулированным входом, если адрес не указан.
const DemoEmail = "demo@palmastro.com"

// PalmModelVersion помечает симулированные результаты анализа ладони.
const PalmModelVersion = "palm-ai-v1-mock"

var memberSince = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// PalmLine описывает одну линию ладони.
type PalmLine struct {
	Quality string `json:"quality"`
	Score   int    `json:"score"`
	Meaning string `json:"meaning"`
	Details string `json:"details"`
}

// PalmLines объединяет основные линии ладони.
type PalmLines struct {
	LifeLine  PalmLine `json:"lifeLine"`
	HeartLine PalmLine `json:"heartLine"`
	HeadLine  PalmLine `json:"headLine"`
	FateLine  PalmLine `json:"fateLine"`
}

// Personality описывает черты характера по ладони.
type Personality struct {
	Traits       []model.TraitScore `json:"traits"`
	DominantHand string             `json:"dominantHand"`
	PalmShape    string             `json:"palmShape"`
	FingerLength string             `json:"fingerLength"`
	HandType     string             `json:"handType"`
}

// Prediction описывает одно предсказание.
type Prediction struct {
	Area       string `json:"area"`
	Timeframe  string `json:"timeframe"`
	Prediction string `json:"prediction"`
	Confidence int    `json:"confidence"`
	Advice     string `json:"advice"`
}

// SpecialMark описывает особый знак на ладони.
type SpecialMark struct {
	Name         string `json:"name"`
	Meaning      string `json:"meaning"`
	Significance string `json:"significance"`
}

// HandMatch описывает совместимость с типом ладони.
type HandMatch struct {
	Type        string `json:"type"`
	Match       int    `json:"match"`
	Description string `json:"description"`
}

// PalmAccuracy содержит оценки точности анализа в долях единицы или процентах.
type PalmAccuracy struct {
	LineDetection   float64 `json:"lineDetection"`
	PatternAnalysis float64 `json:"patternAnalysis"`
	Interpretation  float64 `json:"interpretation"`
	Overall         float64 `json:"overall"`
}

// PalmResult описывает результат анализа ладони.
type PalmResult struct {
	OverallScore  int           `json:"overallScore"`
	Lines         PalmLines     `json:"lines"`
	Personality   Personality   `json:"personality"`
	Predictions   []Prediction  `json:"predictions"`
	SpecialMarks  []SpecialMark `json:"specialMarks"`
	Compatibility []HandMatch   `json:"compatibility"`
	Accuracy      PalmAccuracy  `json:"accuracy"`
	Summary       string        `json:"summary"`
	ModelVersion  string        `json:"modelVersion"`
}

// MockUser возвращает демонстрационного пользователя. Идентификатор выводится из адреса.
func MockUser(email string) model.User {
	if email == "" {
		email = DemoEmail
	}
	return model.User{
		ID:            uuid.NewSHA1(uuid.NameSpaceURL, []byte("palmastro:user:"+email)).String(),
		Email:         email,
		Username:      "demo_user",
		FirstName:     "Demo",
		LastName:      "User",
		Plan:          "stellar_seeker",
		IsPremium:     true,
		TotalReadings: 47,
		AccuracyScore: 94.5,
		MemberSince:   memberSince,
	}
}

// Palm возвращает заготовленный результат анализа ладони.
func Palm() PalmResult {
	return PalmResult{
		OverallScore: 94,
		Lines: PalmLines{
			LifeLine: PalmLine{
				Quality: "Strong", Score: 92, Meaning: "Excellent vitality and long life",
				Details: "Your life line is deep and well-formed, indicating robust health and strong life force.",
			},
			HeartLine: PalmLine{
				Quality: "Curved", Score: 88, Meaning: "Emotional and expressive in love",
				Details: "Your heart line curves upward, showing you're a romantic at heart.",
			},
			HeadLine: PalmLine{
				Quality: "Clear", Score: 96, Meaning: "Sharp intellect and analytical mind",
				Details: "A clear, straight head line indicates logical thinking and excellent problem-solving abilities.",
			},
			FateLine: PalmLine{
				Quality: "Present", Score: 85, Meaning: "Strong sense of purpose and direction",
				Details: "Your fate line suggests you have a clear life direction and will achieve your goals.",
			},
		},
		Personality: Personality{
			Traits: []model.TraitScore{
				{Name: "Leadership", Score: 93, Description: "Natural ability to guide and inspire others"},
				{Name: "Creativity", Score: 87, Description: "Strong artistic and innovative tendencies"},
				{Name: "Intuition", Score: 91, Description: "Excellent instincts and gut feelings"},
				{Name: "Communication", Score: 84, Description: "Good at expressing ideas and connecting with people"},
				{Name: "Determination", Score: 96, Description: "Persistent and goal-oriented nature"},
			},
			DominantHand: "Right",
			PalmShape:    "Square",
			FingerLength: "Balanced",
			HandType:     "Earth",
		},
		Predictions: []Prediction{
			{
				Area: "Career", Timeframe: "Next 6 months", Confidence: 89,
				Prediction: "Significant professional advancement on the horizon. Your leadership qualities will be recognized.",
				Advice:     "Take on challenging projects and showcase your problem-solving skills.",
			},
			{
				Area: "Relationships", Timeframe: "Next 3 months", Confidence: 82,
				Prediction: "A meaningful connection will enter your life. Existing relationships will deepen.",
				Advice:     "Be open to new social situations and express your emotions honestly.",
			},
			{
				Area: "Health", Timeframe: "Ongoing", Confidence: 94,
				Prediction: "Overall excellent health with strong vitality. Minor stress-related concerns possible.",
				Advice:     "Maintain regular exercise and consider meditation for stress management.",
			},
			{
				Area: "Finances", Timeframe: "Next year", Confidence: 78,
				Prediction: "Financial growth through career advancement. Investment opportunities will arise.",
				Advice:     "Focus on long-term planning and avoid impulsive financial decisions.",
			},
		},
		SpecialMarks: []SpecialMark{
			{Name: "Star on Mount of Apollo", Meaning: "Creative success and recognition", Significance: "High"},
			{Name: "Triangle on Mount of Jupiter", Meaning: "Leadership abilities and wisdom", Significance: "Medium"},
			{Name: "Cross on Mount of Mercury", Meaning: "Communication challenges to overcome", Significance: "Low"},
		},
		Compatibility: []HandMatch{
			{Type: "Earth Hands", Match: 94, Description: "Practical and grounded individuals"},
			{Type: "Fire Hands", Match: 87, Description: "Energetic and passionate personalities"},
			{Type: "Water Hands", Match: 76, Description: "Emotional and intuitive types"},
			{Type: "Air Hands", Match: 82, Description: "Intellectual and communicative people"},
		},
		Accuracy: PalmAccuracy{
			LineDetection:   0.98,
			PatternAnalysis: 0.96,
			Interpretation:  0.94,
			Overall:         0.96,
		},
		Summary:      "Your palm indicates strong vitality, sharp intellect, emotional depth, and a purposeful life path with high potential for creative and professional success.",
		ModelVersion: PalmModelVersion,
	}
}

// PalmJSON возвращает результат анализа ладони в виде JSON.
func PalmJSON() json.RawMessage {
	return mustJSON(Palm())
}

// Dashboard возвращает заготовленную сводку пользователя.
func Dashboard() model.Dashboard {
	return model.Dashboard{
		RecentReadings: RecentReadings(),
		WeeklyActivity: []model.DayActivity{
			{Day: "Mon", Readings: 2, Accuracy: 95},
			{Day: "Tue", Readings: 1, Accuracy: 98},
			{Day: "Wed", Readings: 3, Accuracy: 92},
			{Day: "Thu", Readings: 1, Accuracy: 89},
			{Day: "Fri", Readings: 4, Accuracy: 96},
			{Day: "Sat", Readings: 2, Accuracy: 94},
			{Day: "Sun", Readings: 1, Accuracy: 91},
		},
		UserStats: model.UserStats{
			TotalReadings:       47,
			ReadingsThisMonth:   12,
			ReadingsThisWeek:    3,
			AverageAccuracy:     94.5,
			FavoriteReadingType: "Palm Analysis",
			MemberSince:         time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		},
	}
}

// RecentReadings возвращает заготовленную историю чтений, от новых к старым.
func RecentReadings() []model.Reading {
	palmAcc, astroAcc := 96.0, 92.0
	return []model.Reading{
		{
			ID:        "reading_1",
			UserID:    "user_123",
			Kind:      model.KindPalm,
			Status:    model.StatusCompleted,
			Accuracy:  &palmAcc,
			CreatedAt: time.Date(2024, time.January, 20, 10, 30, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, time.January, 20, 10, 35, 0, 0, time.UTC),
		},
		{
			ID:        "reading_2",
			UserID:    "user_123",
			Kind:      model.KindAstrology,
			Status:    model.StatusCompleted,
			Accuracy:  &astroAcc,
			CreatedAt: time.Date(2024, time.January, 19, 15, 20, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, time.January, 19, 15, 25, 0, 0, time.UTC),
		},
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
