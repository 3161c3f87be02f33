package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"video-sentiment-go/internal/httpx"
	"video-sentiment-go/internal/observe"
	"video-sentiment-go/internal/types"
)

// ErrClassifierLoad marks a failed or malformed model config fetch. The job
// orchestrator treats it as fatal to the job.
var ErrClassifierLoad = errors.New("classifier load failure")

const defaultMaxLen = 160

var httpClient = &http.Client{Timeout: 60 * time.Second}

// ModelConfig is the classifier's external configuration. Label sets and the
// token limit are data, not compile-time constants.
type ModelConfig struct {
	BaseModel  string   `json:"base_model"`
	Emotions   []string `json:"emotions"`
	Sentiments []string `json:"sentiments"`
	MaxLen     int      `json:"max_len"`
}

func (c *ModelConfig) validate() error {
	var errs []error
	if c.BaseModel == "" {
		errs = append(errs, fmt.Errorf("missing base_model"))
	}
	if len(c.Emotions) == 0 {
		errs = append(errs, fmt.Errorf("missing emotions"))
	}
	if len(c.Sentiments) == 0 {
		errs = append(errs, fmt.Errorf("missing sentiments"))
	}
	return errors.Join(errs...)
}

// Service wraps the inference endpoint of the fine-tuned emotion/sentiment
// model. The model config is expensive to resolve, so it is loaded lazily on
// first use and a successful load is cached for the life of the process. A
// failed load is never cached: the next call fetches again, so one bad fetch
// does not take down every job after it. A single Service is shared by all
// jobs and is safe for concurrent use.
type Service struct {
	configURL string
	inferURL  string

	mu  sync.Mutex
	cfg *ModelConfig
}

func NewService(configURL, inferURL string) *Service {
	return &Service{configURL: configURL, inferURL: inferURL}
}

// Batch is the classifier output for one batch of texts: per-text results
// aligned 1:1 with the input, plus batch-level mean probability distributions
// computed independently of the per-text arg-max picks.
type Batch struct {
	Results       []types.ClassificationResult
	EmotionDist   types.Distribution
	SentimentDist types.Distribution
}

// Classify runs the whole batch of texts through the model together. texts
// must be non-empty.
func (s *Service) Classify(ctx context.Context, texts []string) (Batch, error) {
	if len(texts) == 0 {
		return Batch{}, fmt.Errorf("classify: empty batch")
	}
	if os.Getenv("USE_MOCK_CLASSIFIER") == "true" {
		return mockClassify(texts), nil
	}

	cfg, err := s.modelConfig(ctx)
	if err != nil {
		return Batch{}, err
	}

	reqBody, _ := json.Marshal(map[string]interface{}{
		"texts":      texts,
		"max_length": cfg.MaxLen,
	})
	req, _ := http.NewRequestWithContext(ctx, "POST", s.inferURL, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		EmotionLogits   [][]float64 `json:"emotion_logits"`
		SentimentLogits [][]float64 `json:"sentiment_logits"`
	}
	if err := httpx.DoJSON(httpClient, req, &resp, 20*time.Second); err != nil {
		return Batch{}, fmt.Errorf("classify: %w", err)
	}
	if len(resp.EmotionLogits) != len(texts) || len(resp.SentimentLogits) != len(texts) {
		return Batch{}, fmt.Errorf("classify: model returned %d/%d rows for %d texts",
			len(resp.EmotionLogits), len(resp.SentimentLogits), len(texts))
	}

	results := make([]types.ClassificationResult, len(texts))
	emoProbs := make([][]float64, len(texts))
	sentProbs := make([][]float64, len(texts))
	for i := range texts {
		if len(resp.EmotionLogits[i]) != len(cfg.Emotions) || len(resp.SentimentLogits[i]) != len(cfg.Sentiments) {
			return Batch{}, fmt.Errorf("classify: row %d has wrong label arity", i)
		}
		emoProbs[i] = softmax(resp.EmotionLogits[i])
		sentProbs[i] = softmax(resp.SentimentLogits[i])
		ei := argmaxFirst(emoProbs[i])
		si := argmaxFirst(sentProbs[i])
		results[i] = types.ClassificationResult{
			Emotion:   types.LabelScore{Label: cfg.Emotions[ei], Score: emoProbs[i][ei]},
			Sentiment: types.LabelScore{Label: cfg.Sentiments[si], Score: sentProbs[i][si]},
		}
	}

	return Batch{
		Results:       results,
		EmotionDist:   meanDistribution(cfg.Emotions, emoProbs),
		SentimentDist: meanDistribution(cfg.Sentiments, sentProbs),
	}, nil
}

// modelConfig returns the cached model config, fetching it on first use. Only
// a successful load is memoized.
func (s *Service) modelConfig(ctx context.Context) (*ModelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil {
		return s.cfg, nil
	}
	cfg, err := fetchConfig(ctx, s.configURL)
	status := "success"
	if err != nil {
		status = "error"
	}
	observe.DefaultMetrics().RecordClassifierLoad(ctx, status)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	return cfg, nil
}

func fetchConfig(ctx context.Context, url string) (*ModelConfig, error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)
	var cfg ModelConfig
	if err := httpx.DoJSON(httpClient, req, &cfg, 20*time.Second); err != nil {
		return nil, fmt.Errorf("%w: fetch config: %v", ErrClassifierLoad, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierLoad, err)
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultMaxLen
	}
	return &cfg, nil
}

// softmax is numerically stable: shifts by the row max before exponentiating.
func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// argmaxFirst returns the index of the maximum value; exact ties resolve to
// the lowest index so label selection is deterministic.
func argmaxFirst(probs []float64) int {
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return best
}

func meanDistribution(labels []string, probs [][]float64) types.Distribution {
	dist := make(types.Distribution, len(labels))
	n := float64(len(probs))
	for i, label := range labels {
		sum := 0.0
		for _, row := range probs {
			sum += row[i]
		}
		dist[label] = sum / n
	}
	return dist
}

// mockClassify gives a deterministic offline path for demos and tests,
// mirroring the label sets of the real model.
func mockClassify(texts []string) Batch {
	emotions := []string{"anger", "disgust", "fear", "joy", "neutral", "sadness", "surprise"}
	sentiments := []string{"negative", "neutral", "positive"}

	results := make([]types.ClassificationResult, len(texts))
	emoProbs := make([][]float64, len(texts))
	sentProbs := make([][]float64, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		emoRow := []float64{0.05, 0.05, 0.05, 0.05, 0.7, 0.05, 0.05}
		sentRow := []float64{0.1, 0.8, 0.1}
		switch {
		case strings.Contains(lower, "refund") || strings.Contains(lower, "angry") || strings.Contains(lower, "not arrived"):
			emoRow = []float64{0.7, 0.05, 0.05, 0.02, 0.08, 0.08, 0.02}
			sentRow = []float64{0.8, 0.15, 0.05}
		case strings.Contains(lower, "thank") || strings.Contains(lower, "great"):
			emoRow = []float64{0.02, 0.02, 0.02, 0.75, 0.1, 0.04, 0.05}
			sentRow = []float64{0.05, 0.15, 0.8}
		}
		emoProbs[i] = emoRow
		sentProbs[i] = sentRow
		ei := argmaxFirst(emoRow)
		si := argmaxFirst(sentRow)
		results[i] = types.ClassificationResult{
			Emotion:   types.LabelScore{Label: emotions[ei], Score: emoRow[ei]},
			Sentiment: types.LabelScore{Label: sentiments[si], Score: sentRow[si]},
		}
	}
	return Batch{
		Results:       results,
		EmotionDist:   meanDistribution(emotions, emoProbs),
		SentimentDist: meanDistribution(sentiments, sentProbs),
	}
}
