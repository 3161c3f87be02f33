package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"video-sentiment-go/internal/classifier"
	"video-sentiment-go/internal/config"
	"video-sentiment-go/internal/logger"
	"video-sentiment-go/internal/observe"
	"video-sentiment-go/internal/orchestrator"
	"video-sentiment-go/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "video-sentiment-worker").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx := context.Background()
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "video-sentiment-worker"})
	if err != nil {
		log.WithError(err).Fatal("failed to init metrics provider")
	}
	defer func() { _ = shutdown(ctx) }()

	// One classifier service per process; the model config loads lazily on the
	// first job and is reused by every job after that.
	svc := classifier.NewService(cfg.ModelConfigURL, cfg.ClassifierURL)
	runner := orchestrator.NewRunner(cfg, svc, observe.DefaultMetrics())

	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})

	// metrics
	mux.Handle("/metrics", promhttp.Handler())

	// analyze endpoint: runs one job synchronously to a terminal state
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "analyze")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req types.AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			reqLog.WithError(err).Warn("bad request body")
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.JobID == "" || req.OrgID == "" || req.VideoStorageKey == "" || req.CallbackBaseURL == "" {
			reqLog.Warn("missing required fields")
			http.Error(w, "jobId, orgId, videoStorageKey and callbackBaseUrl are required", http.StatusBadRequest)
			return
		}
		reqLog = reqLog.WithField("job_id", req.JobID).WithField("org_id", req.OrgID)
		reqLog.Info("analyze request accepted")

		start := time.Now()
		resultKey, card, err := runner.Run(r.Context(), req)
		reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).Info("job finished")

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err != nil {
			reqLog.WithError(err).Warn("job returned error")
			w.WriteHeader(http.StatusInternalServerError)
			_ = enc.Encode(map[string]string{"detail": err.Error()})
			return
		}
		_ = enc.Encode(map[string]interface{}{
			"ok":            true,
			"resultJsonKey": resultKey,
			"actionCard":    card,
		})
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// jobs run synchronously inside the request; the platform's wall-clock
		// budget is the real bound
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}
