package types

// TranscriptSegment is one timestamped speech span produced by the
// transcription engine. Text is always trimmed and non-empty.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// LabelScore is the arg-max class and its probability for one task on one text.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ClassificationResult holds both task outputs for one segment.
type ClassificationResult struct {
	Emotion   LabelScore `json:"emotion"`
	Sentiment LabelScore `json:"sentiment"`
}

// Distribution maps every label of a fixed label set to its mean probability
// across a batch.
type Distribution map[string]float64

// Utterance merges a transcript segment with its classification. This is the
// granular unit of the output artifact.
type Utterance struct {
	TranscriptSegment
	ClassificationResult
}

// Overall is the aggregate verdict for one job.
type Overall struct {
	DominantEmotion       string       `json:"dominantEmotion"`
	DominantSentiment     string       `json:"dominantSentiment"`
	EscalationRisk        float64      `json:"escalationRisk"`
	EmotionDistribution   Distribution `json:"emotionDistribution"`
	SentimentDistribution Distribution `json:"sentimentDistribution"`
}

// AggregateResult is the persisted artifact. It is never mutated after
// construction and must serialize to identical bytes for identical inputs.
type AggregateResult struct {
	JobID      string      `json:"jobId"`
	OrgID      string      `json:"orgId"`
	Overall    Overall     `json:"overall"`
	Utterances []Utterance `json:"utterances"`
}

// JobStatus is the externally visible job lifecycle state.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusSucceeded JobStatus = "SUCCEEDED"
	StatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transitions may leave this status.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// AnalyzeRequest is the single inbound trigger shape.
type AnalyzeRequest struct {
	JobID           string `json:"jobId"`
	OrgID           string `json:"orgId"`
	VideoStorageKey string `json:"videoStorageKey"`
	CallbackBaseURL string `json:"callbackBaseUrl"`
}

// StatusUpdate is the outbound job-update callback body. Progress is only
// meaningful for RUNNING, ResultJSONKey for SUCCEEDED, the error pair for
// FAILED.
type StatusUpdate struct {
	JobID         string    `json:"jobId"`
	Status        JobStatus `json:"status"`
	Progress      int       `json:"progress,omitempty"`
	ResultJSONKey string    `json:"resultJsonKey,omitempty"`
	ErrorCode     string    `json:"errorCode,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
}
