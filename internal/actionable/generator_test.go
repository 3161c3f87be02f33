package actionable

import (
	"strings"
	"testing"

	"video-sentiment-go/internal/types"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		risk float64
		want string
	}{
		{"high risk", 0.75, "High escalation risk"},
		{"moderate risk", 0.4, "Moderate escalation risk"},
		{"low risk", 0.1, "Low escalation risk"},
		{"boundary high", 0.6, "High escalation risk"},
		{"boundary moderate", 0.35, "Moderate escalation risk"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			card := Generate(types.Overall{
				EscalationRisk:    tc.risk,
				DominantEmotion:   "anger",
				DominantSentiment: "negative",
			})
			if !strings.HasPrefix(card.Insight, tc.want) {
				t.Errorf("insight = %q, want prefix %q", card.Insight, tc.want)
			}
			if card.Action == "" || card.Impact == "" {
				t.Errorf("incomplete card: %+v", card)
			}
		})
	}
}
