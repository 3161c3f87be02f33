package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"video-sentiment-go/internal/httpx"
	"video-sentiment-go/internal/logger"
	"video-sentiment-go/internal/types"
)

// ErrTranscription marks any failure of the audio decode / transcription
// engine. The job orchestrator treats it as fatal to the job.
var ErrTranscription = errors.New("transcription failure")

var httpClient = &http.Client{Timeout: 30 * time.Second}

// ExtractAudio converts a downloaded video into the single-channel 16kHz wav
// the engine expects. The wav lands next to the video; the caller owns the
// scratch directory and its cleanup.
func ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	wavPath := videoPath + ".wav"
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", videoPath, "-ar", "16000", "-ac", "1", wavPath)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: ffmpeg extract: %v", ErrTranscription, err)
	}
	return wavPath, nil
}

// Engine talks to the speech-to-text service: publish audio, poll until the
// transcript is ready, download the timestamped segments.
type Engine struct {
	BaseURL string
}

func NewEngine(baseURL string) *Engine {
	return &Engine{BaseURL: strings.TrimRight(baseURL, "/")}
}

type publishResponse struct {
	Code int    `json:"Code"`
	Data struct {
		MediaId     string `json:"MediaId"`
		Status      string `json:"Status"`
		SegmentsURL string `json:"SegmentsURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

type statusResponse struct {
	Code int    `json:"Code"`
	Data struct {
		Status      string `json:"Status"` // Success, Queued, Processing, Failed
		SegmentsURL string `json:"SegmentsURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

// Produce extracts the audio track of the video at videoPath and transcribes
// it into chronological segments whose trimmed text is non-empty. Zero
// segments is a valid return, not an error.
func (e *Engine) Produce(ctx context.Context, videoPath string) ([]types.TranscriptSegment, error) {
	if os.Getenv("USE_MOCK_TRANSCRIBE") == "true" {
		return []types.TranscriptSegment{
			{Start: 0.0, End: 2.4, Text: "Hi, I ordered a laptop two weeks ago."},
			{Start: 2.6, End: 5.1, Text: "It still has not arrived and nobody answers."},
			{Start: 5.3, End: 6.8, Text: "I want a refund today."},
		}, nil
	}
	log := logger.New().WithField("module", "transcription")

	wavPath, err := ExtractAudio(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	mediaID, readyURL, err := e.publish(ctx, wavPath)
	if err != nil {
		return nil, err
	}
	if readyURL == "" {
		readyURL, err = e.poll(ctx, mediaID)
		if err != nil {
			return nil, err
		}
	}
	log.WithField("segments_url", readyURL).Info("transcript ready, downloading segments")

	return e.download(ctx, readyURL)
}

func (e *Engine) publish(ctx context.Context, wavPath string) (mediaID, readyURL string, err error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", "", fmt.Errorf("%w: open audio: %v", ErrTranscription, err)
	}
	defer f.Close()

	var b strings.Builder
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("audio", filepath.Base(wavPath))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", "", fmt.Errorf("%w: read audio: %v", ErrTranscription, err)
	}
	_ = w.Close()

	req, _ := http.NewRequestWithContext(ctx, "POST", e.BaseURL+"/transcribe", strings.NewReader(b.String()))
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp publishResponse
	if err := httpx.DoJSON(httpClient, req, &resp, 12*time.Second); err != nil {
		return "", "", fmt.Errorf("%w: publish: %v", ErrTranscription, err)
	}
	if resp.Code != 200 {
		return "", "", fmt.Errorf("%w: publish rejected: code=%d reason=%s", ErrTranscription, resp.Code, resp.Reason)
	}
	if resp.Data.SegmentsURL != "" && strings.EqualFold(resp.Data.Status, "success") {
		return "", resp.Data.SegmentsURL, nil
	}
	return resp.Data.MediaId, "", nil
}

func (e *Engine) poll(ctx context.Context, mediaID string) (string, error) {
	base := e.BaseURL + "/getstatus"
	for i := 0; i < 40; i++ {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTranscription, ctx.Err())
		case <-time.After(1500 * time.Millisecond):
		}
		u, _ := url.Parse(base)
		q := u.Query()
		q.Set("mediaId", mediaID)
		u.RawQuery = q.Encode()
		req, _ := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
		var s statusResponse
		if err := httpx.DoJSON(httpClient, req, &s, 12*time.Second); err != nil {
			continue
		}
		switch s.Data.Status {
		case "Success":
			return s.Data.SegmentsURL, nil
		case "Queued", "Processing":
			continue
		case "Failed":
			return "", fmt.Errorf("%w: engine failed: %s", ErrTranscription, s.Reason)
		}
	}
	return "", fmt.Errorf("%w: timeout waiting for transcript", ErrTranscription)
}

func (e *Engine) download(ctx context.Context, segURL string) ([]types.TranscriptSegment, error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", segURL, nil)
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download segments: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: download segments: %s", ErrTranscription, string(b))
	}

	var raw []types.TranscriptSegment
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode segments: %v", ErrTranscription, err)
	}

	// Empty spans carry no classification signal and must not go downstream.
	out := make([]types.TranscriptSegment, 0, len(raw))
	for _, s := range raw {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, types.TranscriptSegment{Start: s.Start, End: s.End, Text: text})
	}
	return out, nil
}
