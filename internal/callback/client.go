// Package callback talks to the calling application: job status updates and
// signed download URL minting, both authenticated with the shared bearer
// secret. Delivery failures here are infrastructure errors; they propagate to
// the caller of the orchestrator and are never converted into job failures.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"video-sentiment-go/internal/types"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Client posts to {base}/api/worker/* endpoints for one job's callback base.
type Client struct {
	baseURL string
	secret  string
}

func NewClient(callbackBaseURL, sharedSecret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(callbackBaseURL, "/"),
		secret:  sharedSecret,
	}
}

// JobUpdate reports one status transition. Updates for a job must be sent in
// order and synchronously, before the pipeline moves to its next step. Success
// is judged by the status code alone; the response body is ignored.
func (c *Client) JobUpdate(ctx context.Context, upd types.StatusUpdate) error {
	if err := c.post(ctx, "/api/worker/job-update", upd, nil); err != nil {
		return fmt.Errorf("job update: %w", err)
	}
	return nil
}

// SignedDownloadURL exchanges a storage key for a time-limited download URL.
func (c *Client) SignedDownloadURL(ctx context.Context, storageKey string) (string, error) {
	var resp struct {
		SignedURL string `json:"signedUrl"`
	}
	body := map[string]string{"storageKey": storageKey}
	if err := c.post(ctx, "/api/worker/signed-download", body, &resp); err != nil {
		return "", fmt.Errorf("signed download: %w", err)
	}
	if resp.SignedURL == "" {
		return "", fmt.Errorf("signed download: empty signedUrl in response")
	}
	return resp.SignedURL, nil
}

func (c *Client) post(ctx context.Context, path string, body, target interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw))
	}
	// decode only when the caller expects a response shape
	if target == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
