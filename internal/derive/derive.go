// Package derive вычисляет косметические поля отображения по результату чтения.
//
// Поля являются чистой функцией результата и явного зерна: одинаковые входные
// данные всегда дают одинаковый вывод.
package derive

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"

	"github.com/mmeshcher/palmastro/internal/fixtures"
	"github.com/mmeshcher/palmastro/internal/model"
)

// ErrEmptyResult возвращается, если результат не содержит данных.
var ErrEmptyResult = errors.New("empty reading result")

const (
	traitSpread   = 6
	traitMin      = 50
	traitMax      = 99
	topMatchCount = 5
)

var defaultTraits = []model.TraitScore{
	{Name: "Leadership", Score: 92, Description: "Natural born leader with charismatic presence"},
	{Name: "Creativity", Score: 88, Description: "Highly creative with artistic talents"},
	{Name: "Intuition", Score: 85, Description: "Strong intuitive abilities and psychic sensitivity"},
	{Name: "Communication", Score: 79, Description: "Excellent communication and social skills"},
	{Name: "Determination", Score: 91, Description: "Persistent and goal-oriented"},
}

type element int

const (
	fire element = iota
	earth
	air
	water
)

// Знаки идут по кругу огонь, земля, воздух, вода.
func elementOf(sign string) (element, bool) {
	for i, s := range fixtures.ZodiacSigns {
		if s == sign {
			return element(i % 4), true
		}
	}
	return 0, false
}

func complementary(a, b element) bool {
	return (a == fire && b == air) || (a == air && b == fire) ||
		(a == earth && b == water) || (a == water && b == earth)
}

// Display вычисляет поля отображения для результата указанного типа.
func Display(kind model.ReadingKind, result json.RawMessage, seed uint64) (model.DisplayFields, error) {
	if len(result) == 0 || string(result) == "null" {
		return model.DisplayFields{}, ErrEmptyResult
	}
	rng := newRand(result, seed)

	switch kind {
	case model.KindAstrology:
		var r struct {
			SunSign string `json:"sun_sign"`
		}
		if err := json.Unmarshal(result, &r); err != nil {
			return model.DisplayFields{}, fmt.Errorf("decode astrology result: %w", err)
		}
		return model.DisplayFields{
			Compatibility: Compatibility(r.SunSign, rng),
			Traits:        varyTraits(defaultTraits, rng),
		}, nil
	case model.KindPalm:
		var r struct {
			Personality struct {
				Traits []model.TraitScore `json:"traits"`
			} `json:"personality"`
		}
		if err := json.Unmarshal(result, &r); err != nil {
			return model.DisplayFields{}, fmt.Errorf("decode palm result: %w", err)
		}
		base := r.Personality.Traits
		if len(base) == 0 {
			base = defaultTraits
		}
		return model.DisplayFields{Traits: varyTraits(base, rng)}, nil
	case model.KindNumerology:
		return model.DisplayFields{Traits: varyTraits(defaultTraits, rng)}, nil
	}
	return model.DisplayFields{}, fmt.Errorf("unknown reading kind %q", kind)
}

func newRand(result json.RawMessage, seed uint64) *rand.Rand {
	h := fnv.New64a()
	h.Write(result)
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

// Compatibility возвращает лучшие совпадения знака с остальными знаками зодиака.
// Неизвестный знак даёт пустой список.
func Compatibility(sign string, rng *rand.Rand) []model.CompatibilityMatch {
	own, ok := elementOf(sign)
	if !ok {
		return nil
	}

	matches := make([]model.CompatibilityMatch, 0, len(fixtures.ZodiacSigns)-1)
	for _, other := range fixtures.ZodiacSigns {
		if other == sign {
			continue
		}
		el, _ := elementOf(other)

		var lo, hi int
		switch {
		case el == own:
			lo, hi = 85, 95
		case complementary(own, el):
			lo, hi = 72, 84
		default:
			lo, hi = 55, 70
		}
		score := lo + rng.IntN(hi-lo+1)
		matches = append(matches, model.CompatibilityMatch{
			Sign:  other,
			Match: score,
			Label: matchLabel(score),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Match != matches[j].Match {
			return matches[i].Match > matches[j].Match
		}
		return matches[i].Sign < matches[j].Sign
	})
	if len(matches) > topMatchCount {
		matches = matches[:topMatchCount]
	}
	return matches
}

func matchLabel(score int) string {
	switch {
	case score >= 90:
		return "Soulmate"
	case score >= 85:
		return "Perfect Match"
	case score >= 80:
		return "Great Match"
	case score >= 70:
		return "Good Match"
	}
	return "Challenging"
}

func varyTraits(base []model.TraitScore, rng *rand.Rand) []model.TraitScore {
	out := make([]model.TraitScore, len(base))
	for i, tr := range base {
		score := tr.Score + rng.IntN(2*traitSpread+1) - traitSpread
		tr.Score = min(traitMax, max(traitMin, score))
		out[i] = tr
	}
	return out
}
