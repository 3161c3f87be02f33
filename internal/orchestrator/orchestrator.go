// Package orchestrator drives one analysis job end-to-end through the
// PENDING → RUNNING → {SUCCEEDED, FAILED} state machine: acquire the input,
// transcribe, classify, aggregate, persist, and report every transition to the
// caller before moving on.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"video-sentiment-go/internal/actionable"
	"video-sentiment-go/internal/aggregator"
	"video-sentiment-go/internal/callback"
	"video-sentiment-go/internal/classifier"
	"video-sentiment-go/internal/config"
	"video-sentiment-go/internal/logger"
	"video-sentiment-go/internal/observe"
	"video-sentiment-go/internal/report"
	"video-sentiment-go/internal/storage"
	"video-sentiment-go/internal/transcription"
	"video-sentiment-go/internal/types"
)

// ErrorCodeWorker is the fixed error code carried by every FAILED report.
const ErrorCodeWorker = "WORKER_ERROR"

// ErrEmptyTranscript is the by-policy failure for jobs whose video contains no
// usable speech. Its message reaches the caller verbatim so it can be told
// apart from infrastructure errors.
var ErrEmptyTranscript = errors.New("no speech detected in video")

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// infraError marks a status-channel delivery failure. It bypasses the
// job-failure handler: the job must not be transitioned to FAILED because of
// it, and it propagates to the transport as-is.
type infraError struct {
	err error
}

func (e infraError) Error() string { return e.err.Error() }
func (e infraError) Unwrap() error { return e.err }

// segmentProducer turns a downloaded video into transcript segments.
type segmentProducer interface {
	Produce(ctx context.Context, videoPath string) ([]types.TranscriptSegment, error)
}

// utteranceClassifier classifies one batch of texts.
type utteranceClassifier interface {
	Classify(ctx context.Context, texts []string) (classifier.Batch, error)
}

// Runner executes jobs. It is safe for concurrent use; the only process-wide
// shared state is the classifier's memoized model config.
type Runner struct {
	cfg        config.Config
	classifier utteranceClassifier
	engine     segmentProducer
	store      *storage.Store
	metrics    *observe.Metrics
}

func NewRunner(cfg config.Config, svc *classifier.Service, metrics *observe.Metrics) *Runner {
	return &Runner{
		cfg:        cfg,
		classifier: svc,
		engine:     transcription.NewEngine(cfg.TranscribeURL),
		store:      storage.NewStore(cfg.StorageURL, cfg.StorageBucket, cfg.StorageServiceKey),
		metrics:    metrics,
	}
}

// Run executes one job to a terminal state. On success it returns the artifact
// key and an action card for the sync response. Every processing error is
// converted into exactly one FAILED report and then returned, so the transport
// observes the failure too. Status delivery errors propagate without a FAILED
// conversion.
func (r *Runner) Run(ctx context.Context, req types.AnalyzeRequest) (string, actionable.ActionCard, error) {
	log := logger.New().WithJob(req.JobID, req.OrgID)
	cb := callback.NewClient(req.CallbackBaseURL, r.cfg.CallbackSharedSecret)

	r.metrics.JobsInFlight.Add(ctx, 1)
	defer r.metrics.JobsInFlight.Add(ctx, -1)

	key, card, err := r.execute(ctx, cb, req)
	if err != nil {
		var infra infraError
		if errors.As(err, &infra) {
			log.WithError(err).Error("status channel failure, job state unknown to caller")
			r.metrics.RecordJob(ctx, "infra_error")
			return "", card, err
		}

		log.WithError(err).Warn("job failed")
		r.metrics.RecordJob(ctx, string(types.StatusFailed))
		failed := types.StatusUpdate{
			JobID:        req.JobID,
			Status:       types.StatusFailed,
			ErrorCode:    ErrorCodeWorker,
			ErrorMessage: err.Error(),
		}
		if repErr := cb.JobUpdate(ctx, failed); repErr != nil {
			return "", card, errors.Join(err, repErr)
		}
		return "", card, err
	}

	log.WithField("result_key", key).Info("job succeeded")
	r.metrics.RecordJob(ctx, string(types.StatusSucceeded))
	return key, card, nil
}

// execute runs steps 1-10. Progress checkpoints are monotonically
// non-decreasing and each update is delivered before the next step starts.
func (r *Runner) execute(ctx context.Context, cb *callback.Client, req types.AnalyzeRequest) (string, actionable.ActionCard, error) {
	var card actionable.ActionCard
	log := logger.New().WithJob(req.JobID, req.OrgID)

	// 1. Job accepted.
	if err := r.progress(ctx, cb, req.JobID, 5); err != nil {
		return "", card, err
	}

	// 2. Resolve the input to a retrievable resource.
	signedURL, err := cb.SignedDownloadURL(ctx, req.VideoStorageKey)
	if err != nil {
		return "", card, err
	}
	if err := r.progress(ctx, cb, req.JobID, 10); err != nil {
		return "", card, err
	}

	// 3. Retrieve the input to per-job scratch space, released on every path.
	scratch, err := os.MkdirTemp(r.cfg.ScratchDir, "job-"+req.JobID+"-")
	if err != nil {
		return "", card, err
	}
	defer os.RemoveAll(scratch)

	videoPath := filepath.Join(scratch, "input.mp4")
	start := time.Now()
	if err := storage.DownloadTo(ctx, signedURL, videoPath); err != nil {
		return "", card, err
	}
	r.metrics.DownloadDuration.Record(ctx, time.Since(start).Seconds())
	if err := r.progress(ctx, cb, req.JobID, 20); err != nil {
		return "", card, err
	}

	// 4. Transcribe.
	start = time.Now()
	segments, err := r.engine.Produce(ctx, videoPath)
	if err != nil {
		return "", card, err
	}
	r.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	if err := r.progress(ctx, cb, req.JobID, 60); err != nil {
		return "", card, err
	}

	// 5. No usable speech is fatal by policy; classification is never invoked.
	if len(segments) == 0 {
		return "", card, ErrEmptyTranscript
	}
	log.WithField("segments", len(segments)).Info("transcription done")

	// 6. Classify all segment texts as one batch.
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	start = time.Now()
	batch, err := r.classifier.Classify(ctx, texts)
	if err != nil {
		return "", card, err
	}
	r.metrics.ClassificationDuration.Record(ctx, time.Since(start).Seconds())

	// 7. Merge segments with their classifications, index-aligned.
	utterances := make([]types.Utterance, len(segments))
	for i, s := range segments {
		utterances[i] = types.Utterance{
			TranscriptSegment:    s,
			ClassificationResult: batch.Results[i],
		}
	}

	// 8. Aggregate.
	overall, err := aggregator.Aggregate(utterances, batch.EmotionDist, batch.SentimentDist)
	if err != nil {
		return "", card, err
	}
	card = actionable.Generate(overall)

	// 9. Persist the artifact and the review spreadsheet.
	result := types.AggregateResult{
		JobID:      req.JobID,
		OrgID:      req.OrgID,
		Overall:    overall,
		Utterances: utterances,
	}
	resultKey := storage.ArtifactKey(req.OrgID, req.JobID)
	start = time.Now()
	if err := r.store.UploadJSON(ctx, resultKey, result); err != nil {
		return "", card, err
	}
	workbook, err := report.BuildWorkbook(result)
	if err != nil {
		return "", card, err
	}
	if err := r.store.UploadBytes(ctx, storage.ReportKey(req.OrgID, req.JobID), xlsxContentType, workbook); err != nil {
		return "", card, err
	}
	r.metrics.PersistDuration.Record(ctx, time.Since(start).Seconds())

	// 10. Terminal transition.
	succeeded := types.StatusUpdate{
		JobID:         req.JobID,
		Status:        types.StatusSucceeded,
		Progress:      100,
		ResultJSONKey: resultKey,
	}
	if err := cb.JobUpdate(ctx, succeeded); err != nil {
		return "", card, infraError{err}
	}
	return resultKey, card, nil
}

func (r *Runner) progress(ctx context.Context, cb *callback.Client, jobID string, pct int) error {
	upd := types.StatusUpdate{JobID: jobID, Status: types.StatusRunning, Progress: pct}
	if err := cb.JobUpdate(ctx, upd); err != nil {
		return infraError{err: fmt.Errorf("progress %d: %w", pct, err)}
	}
	return nil
}
