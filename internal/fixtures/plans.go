package fixtures

import "github.com/mmeshcher/palmastro/internal/model"

// FreePlan назначается новым пользователям.
const FreePlan = "cosmic_explorer"

var plans = []model.Plan{
	{
		Name:        FreePlan,
		DisplayName: "Cosmic Explorer",
		Features:    []string{"Basic palm reading", "General life insights", "Community access", "Educational content"},
	},
	{
		Name:        "stellar_seeker",
		DisplayName: "Stellar Seeker",
		Features: []string{
			"Unlimited palm readings", "Detailed astrology reports", "Daily horoscopes",
			"Love compatibility analysis", "Career guidance", "Priority support", "Advanced AI insights",
		},
	},
	{
		Name:        "mystic_master",
		DisplayName: "Mystic Master",
		Features: []string{
			"Everything in Stellar Seeker", "1-on-1 astrologer consultation", "Custom birth chart analysis",
			"Weekly live readings", "Future predictions (6 months)", "Personalized remedies",
			"VIP customer support", "Early access to new features",
		},
	},
	{
		Name:        "cosmic_oracle",
		DisplayName: "Cosmic Oracle",
		Features:    []string{"Everything in Mystic Master", "Unlimited predictions", "Annual life forecast"},
	},
}

// Plans возвращает каталог тарифных планов, от бесплатного к самому дорогому.
func Plans() []model.Plan {
	out := make([]model.Plan, len(plans))
	for i, p := range plans {
		p.Features = append([]string(nil), p.Features...)
		out[i] = p
	}
	return out
}

// FindPlan ищет план по имени.
func FindPlan(name string) (model.Plan, bool) {
	for _, p := range Plans() {
		if p.Name == name {
			return p, true
		}
	}
	return model.Plan{}, false
}

// IsPremiumPlan сообщает, относится ли план к платным.
func IsPremiumPlan(name string) bool {
	return name != "" && name != FreePlan
}
