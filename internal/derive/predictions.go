package derive

import (
	"cmp"
	"encoding/json"
	"slices"

	"github.com/mmeshcher/palmastro/internal/model"
)

// MaxPredictions ограничивает выдачу сводки предсказаний.
const MaxPredictions = 20

const (
	defaultPalmConfidence      = 80
	defaultAstrologyConfidence = 85
)

type rawPrediction struct {
	Area        string   `json:"area"`
	Type        string   `json:"type"`
	Timeframe   *string  `json:"timeframe"`
	Window      string   `json:"window"`
	Prediction  string   `json:"prediction"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence"`
}

// Predictions собирает предсказания из завершённых чтений ладони и астрологии
// и возвращает не более limit самых уверенных. Порядок чтений сохраняется
// среди предсказаний с равной уверенностью.
func Predictions(readings []model.Reading, limit int) []model.Prediction {
	if limit <= 0 || limit > MaxPredictions {
		limit = MaxPredictions
	}
	out := make([]model.Prediction, 0)
	for _, r := range readings {
		if r.Status != model.StatusCompleted || len(r.Result) == 0 {
			continue
		}
		switch r.Kind {
		case model.KindPalm:
			var res struct {
				Predictions []json.RawMessage `json:"predictions"`
			}
			if json.Unmarshal(r.Result, &res) != nil {
				continue
			}
			for _, raw := range res.Predictions {
				var p rawPrediction
				if json.Unmarshal(raw, &p) != nil {
					continue
				}
				timeframe := p.Window
				if p.Timeframe != nil && *p.Timeframe != "" {
					timeframe = *p.Timeframe
				}
				out = append(out, model.Prediction{
					ReadingID:   r.ID,
					Kind:        r.Kind,
					ReadingDate: r.CreatedAt,
					Area:        firstNonEmpty(p.Area, p.Type, "General"),
					Timeframe:   timeframe,
					Prediction:  firstNonEmpty(p.Prediction, p.Summary),
					Confidence:  confidenceOr(p.Confidence, defaultPalmConfidence),
				})
			}
		case model.KindAstrology:
			var res struct {
				LifePredictions []json.RawMessage `json:"lifePredictions"`
			}
			if json.Unmarshal(r.Result, &res) != nil {
				continue
			}
			for _, raw := range res.LifePredictions {
				var p rawPrediction
				if json.Unmarshal(raw, &p) != nil {
					continue
				}
				timeframe := "Upcoming"
				if p.Timeframe != nil {
					timeframe = *p.Timeframe
				}
				out = append(out, model.Prediction{
					ReadingID:   r.ID,
					Kind:        r.Kind,
					ReadingDate: r.CreatedAt,
					Area:        firstNonEmpty(p.Area, "General"),
					Timeframe:   timeframe,
					Prediction:  firstNonEmpty(p.Prediction, p.Description),
					Confidence:  confidenceOr(p.Confidence, defaultAstrologyConfidence),
				})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b model.Prediction) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func confidenceOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
