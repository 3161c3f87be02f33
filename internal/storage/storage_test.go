package storage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"video-sentiment-go/internal/types"
)

type upload struct {
	contentType string
	upsert      string
	auth        string
	body        []byte
}

// newStoreServer records every uploaded object by its request path.
func newStoreServer(t *testing.T) (*Store, map[string]*upload) {
	t.Helper()
	var mu sync.Mutex
	uploads := map[string]*upload{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		mu.Lock()
		uploads[r.URL.Path] = &upload{
			contentType: r.Header.Get("Content-Type"),
			upsert:      r.Header.Get("x-upsert"),
			auth:        r.Header.Get("Authorization"),
			body:        buf.Bytes(),
		}
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return NewStore(srv.URL, "media", "service-key"), uploads
}

func TestArtifactKey(t *testing.T) {
	got := ArtifactKey("org-1", "job-9")
	want := "org/org-1/artifacts/job-9/result.json"
	if got != want {
		t.Errorf("ArtifactKey = %q, want %q", got, want)
	}
}

func TestUploadJSON(t *testing.T) {
	store, uploads := newStoreServer(t)
	result := types.AggregateResult{
		JobID: "job-1",
		OrgID: "org-1",
		Overall: types.Overall{
			DominantEmotion:       "anger",
			DominantSentiment:     "negative",
			EscalationRisk:        0.55,
			EmotionDistribution:   types.Distribution{"anger": 0.6, "joy": 0.4},
			SentimentDistribution: types.Distribution{"negative": 0.7, "positive": 0.3},
		},
	}

	key := ArtifactKey("org-1", "job-1")
	if err := store.UploadJSON(context.Background(), key, result); err != nil {
		t.Fatalf("UploadJSON: %v", err)
	}

	up := uploads["/object/media/"+key]
	if up == nil {
		t.Fatalf("no upload recorded, got paths %v", uploads)
	}
	if up.contentType != "application/json" {
		t.Errorf("content type = %q", up.contentType)
	}
	if up.upsert != "true" {
		t.Errorf("x-upsert = %q, want true", up.upsert)
	}
	if up.auth != "Bearer service-key" {
		t.Errorf("authorization = %q", up.auth)
	}
}

func TestUploadJSON_IdenticalInputsIdenticalBytes(t *testing.T) {
	store, uploads := newStoreServer(t)
	result := types.AggregateResult{
		JobID: "job-2",
		OrgID: "org-2",
		Overall: types.Overall{
			EmotionDistribution:   types.Distribution{"joy": 0.2, "anger": 0.3, "fear": 0.5},
			SentimentDistribution: types.Distribution{"negative": 0.9, "neutral": 0.05, "positive": 0.05},
		},
	}

	key := ArtifactKey("org-2", "job-2")
	if err := store.UploadJSON(context.Background(), key, result); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	first := append([]byte(nil), uploads["/object/media/"+key].body...)

	if err := store.UploadJSON(context.Background(), key, result); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	second := uploads["/object/media/"+key].body

	if !bytes.Equal(first, second) {
		t.Errorf("re-persisted bytes differ:\n%s\n%s", first, second)
	}
}

func TestUpload_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket missing", http.StatusNotFound)
	}))
	defer srv.Close()
	store := NewStore(srv.URL, "media", "k")
	if err := store.UploadBytes(context.Background(), "some/key", "text/plain", []byte("x")); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestDownloadTo(t *testing.T) {
	payload := bytes.Repeat([]byte("chunk"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "input.mp4")
	if err := DownloadTo(context.Background(), srv.URL, path); err != nil {
		t.Fatalf("DownloadTo: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded %d bytes, want %d", len(got), len(payload))
	}
}

func TestDownloadTo_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusForbidden)
	}))
	defer srv.Close()
	err := DownloadTo(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"))
	if err == nil {
		t.Fatal("expected error on 403")
	}
}
