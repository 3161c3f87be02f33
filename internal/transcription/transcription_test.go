package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// newEngineServer fakes the speech-to-text service. The publish response is
// controlled per test; /segments serves the given segment JSON.
func newEngineServer(t *testing.T, publishBody func(segmentsURL string) interface{}, segmentsJSON string) (*Engine, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(publishBody(srv.URL + "/segments"))
	})
	mux.HandleFunc("/segments", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(segmentsJSON))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewEngine(srv.URL), srv
}

// publishedReady reports the transcript as already complete at publish time.
func publishedReady(segmentsURL string) interface{} {
	return map[string]interface{}{
		"Code": 200,
		"Data": map[string]interface{}{
			"MediaId":     "m-1",
			"Status":      "Success",
			"SegmentsURL": segmentsURL,
		},
	}
}

func writeWav(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPublishAndDownloadSegments(t *testing.T) {
	segs := `[
		{"start": 0.0, "end": 1.5, "text": " Hello there. "},
		{"start": 1.6, "end": 2.0, "text": "   "},
		{"start": 2.1, "end": 3.0, "text": ""},
		{"start": 3.1, "end": 4.2, "text": "Second span"}
	]`
	e, _ := newEngineServer(t, publishedReady, segs)

	mediaID, readyURL, err := e.publish(context.Background(), writeWav(t))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if mediaID != "" || readyURL == "" {
		t.Fatalf("publish = (%q, %q), want ready URL", mediaID, readyURL)
	}

	got, err := e.download(context.Background(), readyURL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	// blank spans are dropped, text is trimmed, order preserved
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(got), got)
	}
	if got[0].Text != "Hello there." {
		t.Errorf("segment 0 text = %q", got[0].Text)
	}
	if got[1].Text != "Second span" || got[1].Start != 3.1 {
		t.Errorf("segment 1 = %+v", got[1])
	}
}

func TestDownload_AllSegmentsBlankIsEmptyNotError(t *testing.T) {
	e, _ := newEngineServer(t, publishedReady, `[{"start":0,"end":1,"text":"  "}]`)
	_, readyURL, err := e.publish(context.Background(), writeWav(t))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := e.download(context.Background(), readyURL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d segments, want 0", len(got))
	}
}

func TestPublish_Rejected(t *testing.T) {
	e, _ := newEngineServer(t, func(string) interface{} {
		return map[string]interface{}{"Code": 422, "Reason": "unsupported codec"}
	}, `[]`)
	_, _, err := e.publish(context.Background(), writeWav(t))
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("err = %v, want ErrTranscription", err)
	}
}

func TestPoll_EngineFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mediaId") != "m-9" {
			http.Error(w, "unknown media", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Code":   200,
			"Data":   map[string]interface{}{"Status": "Failed"},
			"Reason": "corrupt audio",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewEngine(srv.URL)
	_, err := e.poll(context.Background(), "m-9")
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("err = %v, want ErrTranscription", err)
	}
}

func TestProduce_MockMode(t *testing.T) {
	t.Setenv("USE_MOCK_TRANSCRIBE", "true")
	e := NewEngine("")
	segs, err := e.Produce(context.Background(), "does-not-exist.mp4")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(segs) == 0 {
		t.Fatal("mock mode returned no segments")
	}
	for i, s := range segs {
		if s.Text == "" || s.End < s.Start {
			t.Errorf("segment %d invalid: %+v", i, s)
		}
	}
}
