package aggregator

import (
	"fmt"

	"video-sentiment-go/internal/types"
)

// negativeLabel is the sentiment label whose accumulated mass defines
// escalation risk.
const negativeLabel = "negative"

// riskEpsilon keeps the risk quotient defined when no sentiment mass exists.
const riskEpsilon = 1e-9

// scoreAccumulator sums LabelScore confidences per label, remembering the
// order labels were first seen so exact ties resolve to the earliest label.
type scoreAccumulator struct {
	order  []string
	totals map[string]float64
}

func newScoreAccumulator() *scoreAccumulator {
	return &scoreAccumulator{totals: map[string]float64{}}
}

func (a *scoreAccumulator) add(ls types.LabelScore) {
	if _, seen := a.totals[ls.Label]; !seen {
		a.order = append(a.order, ls.Label)
	}
	a.totals[ls.Label] += ls.Score
}

// dominant returns the label with the highest accumulated score. Ties go to
// the label first inserted, never to map iteration order.
func (a *scoreAccumulator) dominant() string {
	best := ""
	bestScore := 0.0
	for _, label := range a.order {
		if best == "" || a.totals[label] > bestScore {
			best = label
			bestScore = a.totals[label]
		}
	}
	return best
}

func (a *scoreAccumulator) sum() float64 {
	total := 0.0
	for _, v := range a.totals {
		total += v
	}
	return total
}

// Aggregate combines per-utterance classifications into the overall verdict.
// The caller must guarantee utterances is non-empty; zero usable speech is a
// pipeline-level failure decided before aggregation, not a default here.
func Aggregate(utterances []types.Utterance, emoDist, sentDist types.Distribution) (types.Overall, error) {
	if len(utterances) == 0 {
		return types.Overall{}, fmt.Errorf("aggregate: no utterances")
	}

	emo := newScoreAccumulator()
	sent := newScoreAccumulator()
	for _, u := range utterances {
		emo.add(u.Emotion)
		sent.add(u.Sentiment)
	}

	// Risk is the negative share of all accumulated sentiment confidence.
	// The epsilon keeps it strictly below 1 and defined for any input.
	risk := sent.totals[negativeLabel] / (sent.sum() + riskEpsilon)

	return types.Overall{
		DominantEmotion:       emo.dominant(),
		DominantSentiment:     sent.dominant(),
		EscalationRisk:        risk,
		EmotionDistribution:   emoDist,
		SentimentDistribution: sentDist,
	}, nil
}
