package fixtures

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/palmastro/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSunSign(t *testing.T) {
	tests := []struct {
		day  time.Time
		want string
	}{
		{date(1990, time.January, 1), "Capricorn"},
		{date(1990, time.January, 19), "Capricorn"},
		{date(1990, time.January, 20), "Aquarius"},
		{date(1990, time.February, 18), "Aquarius"},
		{date(1990, time.February, 19), "Pisces"},
		{date(1990, time.March, 21), "Aries"},
		{date(1990, time.August, 1), "Leo"},
		{date(1990, time.October, 23), "Scorpio"},
		{date(1990, time.December, 21), "Sagittarius"},
		{date(1990, time.December, 22), "Capricorn"},
	}

	for _, tt := range tests {
		t.Run(tt.day.Format(time.DateOnly), func(t *testing.T) {
			assert.Equal(t, tt.want, SunSign(tt.day))
		})
	}
}

func TestMoonAndRising(t *testing.T) {
	moon, rising := MoonAndRising(0, false)
	assert.Equal(t, "Libra", moon)
	assert.Equal(t, "Capricorn", rising)

	moon, rising = MoonAndRising(7, true)
	assert.Equal(t, "Cancer", moon)
	assert.Equal(t, "Libra", rising)
}

func TestAstrology(t *testing.T) {
	res := Astrology(
		model.BirthDetails{Date: "1992-04-25", Time: "23:10", Place: "Lisbon"},
		model.Preferences{FocusAreas: []string{"career"}},
	)

	assert.Equal(t, "Taurus", res.SunSign)
	assert.Equal(t, "Pisces", res.MoonSign)
	assert.Equal(t, "Gemini", res.RisingSign)
	assert.Equal(t, []string{"career"}, res.FocusAreas)
	assert.InDelta(t, 0.91, res.Accuracy.Overall, 1e-9)
}

func TestReduce(t *testing.T) {
	assert.Equal(t, 7, Reduce(7))
	assert.Equal(t, 11, Reduce(11))
	assert.Equal(t, 22, Reduce(22))
	assert.Equal(t, 33, Reduce(33))
	assert.Equal(t, 1, Reduce(28))
	assert.Equal(t, 11, Reduce(29))
	assert.Equal(t, 9, Reduce(1998))
}

func TestNumerology(t *testing.T) {
	res := Numerology("Ada Lovelace", date(1815, time.December, 10))

	assert.Equal(t, "ADALOVELACE", res.NormalizedName)
	assert.Equal(t, 19, res.LifePathRaw)
	assert.Equal(t, 1, res.LifePath)
	// A1 D4 A1 L3 O6 V4 E5 L3 A1 C3 E5
	assert.Equal(t, 36, res.DestinyRaw)
	assert.Equal(t, 9, res.Destiny)
	assert.Equal(t, 19, res.SoulRaw)
	assert.Equal(t, 17, res.PersonalityRaw)
	assert.Equal(t, 8, res.Personality)
	assert.Equal(t, []int{2, 7, 8, 9}, res.KarmicLessons)
}

func TestPalmJSON(t *testing.T) {
	var decoded struct {
		Accuracy struct {
			Overall float64 `json:"overall"`
		} `json:"accuracy"`
		ModelVersion string `json:"modelVersion"`
	}
	require.NoError(t, json.Unmarshal(PalmJSON(), &decoded))
	assert.InDelta(t, 0.96, decoded.Accuracy.Overall, 1e-9)
	assert.Equal(t, PalmModelVersion, decoded.ModelVersion)
}

func TestMockUserStableID(t *testing.T) {
	a := MockUser("a@example.com")
	b := MockUser("a@example.com")
	c := MockUser("")

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, DemoEmail, c.Email)
}

func TestPlans(t *testing.T) {
	p, ok := FindPlan("mystic_master")
	require.True(t, ok)
	assert.Equal(t, "Mystic Master", p.DisplayName)
	assert.Contains(t, p.Features, "Weekly live readings")

	_, ok = FindPlan("golden_goose")
	assert.False(t, ok)

	assert.False(t, IsPremiumPlan(FreePlan))
	assert.True(t, IsPremiumPlan("cosmic_oracle"))

	plans := Plans()
	plans[1].Features[0] = "changed"
	again, _ := FindPlan(plans[1].Name)
	assert.NotEqual(t, "changed", again.Features[0])
}
