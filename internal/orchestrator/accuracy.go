package orchestrator

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/mmeshcher/palmastro/internal/model"
)

// Точность по умолчанию, если результат её не содержит.
const (
	defaultPalmAccuracy       = 90
	defaultAstrologyAccuracy  = 91
	defaultNumerologyAccuracy = 95
)

var scoredLines = []string{"lifeLine", "headLine", "heartLine", "fateLine"}

type accuracyProbe struct {
	Accuracy     json.RawMessage `json:"accuracy"`
	OverallScore float64         `json:"overallScore"`
	Lines        map[string]struct {
		Score   float64 `json:"score"`
		Quality string  `json:"quality"`
	} `json:"lines"`
}

// percent переводит долю (≤1) или процент в проценты.
func percent(v float64) float64 {
	if v <= 1 {
		return math.Round(v * 100)
	}
	return math.Round(v)
}

// AccuracyFrom извлекает точность результата в процентах.
// Порядок: accuracy.overall, числовое accuracy, overallScore и средняя оценка линий ладони,
// затем значение по умолчанию для типа чтения.
func AccuracyFrom(kind model.ReadingKind, result json.RawMessage) float64 {
	var p accuracyProbe
	if err := json.Unmarshal(result, &p); err == nil {
		if v := probeAccuracy(kind, p); v > 0 {
			return model.ClampAccuracy(v)
		}
	}

	switch kind {
	case model.KindNumerology:
		return defaultNumerologyAccuracy
	case model.KindAstrology:
		return defaultAstrologyAccuracy
	}
	return defaultPalmAccuracy
}

func probeAccuracy(kind model.ReadingKind, p accuracyProbe) float64 {
	if len(p.Accuracy) > 0 {
		var block struct {
			Overall float64 `json:"overall"`
		}
		if err := json.Unmarshal(p.Accuracy, &block); err == nil && block.Overall > 0 {
			return percent(block.Overall)
		}
		var direct float64
		if err := json.Unmarshal(p.Accuracy, &direct); err == nil && direct > 0 {
			return math.Round(direct)
		}
	}

	if kind != model.KindPalm {
		return 0
	}
	if p.OverallScore > 0 {
		return percent(p.OverallScore)
	}

	var sum float64
	var n int
	for _, name := range scoredLines {
		line, ok := p.Lines[name]
		if !ok || line.Score <= 0 {
			continue
		}
		if name == "fateLine" && strings.EqualFold(line.Quality, "absent") {
			continue
		}
		sum += line.Score
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum / float64(n))
}
