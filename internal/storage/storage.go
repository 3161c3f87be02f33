// Package storage covers both sides of the job's object IO: streaming the
// input video down to scratch space and uploading result artifacts to the
// shared object store.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 10 * time.Minute}

// DownloadTo streams the signed URL's bytes into path without buffering the
// whole object in memory.
func DownloadTo(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download input: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download input: status=%d body=%s", resp.StatusCode, string(b))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("download input: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("download input: %w", err)
	}
	return nil
}

// Store uploads artifacts into one bucket of the object store, authenticated
// with the service key.
type Store struct {
	baseURL    string
	bucket     string
	serviceKey string
}

func NewStore(baseURL, bucket, serviceKey string) *Store {
	return &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
	}
}

// ArtifactKey is the deterministic, org-namespaced location of a job's result.
func ArtifactKey(orgID, jobID string) string {
	return fmt.Sprintf("org/%s/artifacts/%s/result.json", orgID, jobID)
}

// ReportKey locates the human-readable utterance spreadsheet next to the
// result artifact.
func ReportKey(orgID, jobID string) string {
	return fmt.Sprintf("org/%s/artifacts/%s/utterances.xlsx", orgID, jobID)
}

// UploadJSON serializes v and upserts it at key with application/json.
// json.Marshal sorts map keys, so identical values yield identical bytes and
// re-persisting the same result is idempotent.
func (s *Store) UploadJSON(ctx context.Context, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return s.UploadBytes(ctx, key, "application/json", payload)
}

// UploadBytes upserts raw bytes at key with the given content type.
func (s *Store) UploadBytes(ctx context.Context, key, contentType string, payload []byte) error {
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, key)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("upload %s: status=%d body=%s", key, resp.StatusCode, string(b))
	}
	return nil
}
