package actionable

import (
	"fmt"

	"video-sentiment-go/internal/types"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// Generate turns the aggregate verdict into a one-line recommendation for the
// caller's dashboard. It rides on the sync response only; the stored artifact
// stays byte-deterministic.
func Generate(overall types.Overall) ActionCard {
	switch {
	case overall.EscalationRisk >= 0.6:
		return ActionCard{
			Insight: fmt.Sprintf("High escalation risk (%.0f%%), dominant emotion %s", overall.EscalationRisk*100, overall.DominantEmotion),
			Action:  "Route to a senior agent within 24h and open a follow-up ticket",
			Impact:  "Prevent churn from an already escalated conversation",
		}
	case overall.EscalationRisk >= 0.35:
		return ActionCard{
			Insight: fmt.Sprintf("Moderate escalation risk (%.0f%%)", overall.EscalationRisk*100),
			Action:  "Queue for standard follow-up; confirm resolution by email",
			Impact:  "Catch drift before it escalates",
		}
	default:
		return ActionCard{
			Insight: fmt.Sprintf("Low escalation risk, sentiment %s", overall.DominantSentiment),
			Action:  "No intervention needed; archive with the artifact",
			Impact:  "Low immediate intervention",
		}
	}
}
