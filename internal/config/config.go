package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "WORKER_CONFIG"

	defaultPort          = "8080"
	defaultStorageBucket = "media"
	defaultScratchDir    = ""
)

// Config holds every setting the worker needs. Values come from an optional
// YAML file pointed at by WORKER_CONFIG, with environment variables taking
// precedence over file values.
type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port"`
	// Environment selects log formatting ("local" = pretty console).
	Environment string `yaml:"environment"`

	// CallbackSharedSecret is the bearer credential for the caller's
	// job-update and signed-download endpoints.
	CallbackSharedSecret string `yaml:"callbackSharedSecret"`

	// TranscribeURL is the base URL of the speech-to-text service.
	TranscribeURL string `yaml:"transcribeUrl"`
	// ClassifierURL is the inference endpoint of the emotion/sentiment model.
	ClassifierURL string `yaml:"classifierUrl"`
	// ModelConfigURL points at the model's config.json (label sets, max_len).
	ModelConfigURL string `yaml:"modelConfigUrl"`

	// StorageURL is the object-store API base, StorageBucket the bucket for
	// result artifacts.
	StorageURL        string `yaml:"storageUrl"`
	StorageBucket     string `yaml:"storageBucket"`
	StorageServiceKey string `yaml:"storageServiceKey"`

	// ScratchDir is where per-job downloads land; empty means os.TempDir.
	ScratchDir string `yaml:"scratchDir"`
}

// Load reads the optional YAML file and applies environment overrides. A
// WORKER_CONFIG path that cannot be read or parsed is an error: a typo'd file
// must not silently run the worker on defaults. The result is not yet
// validated; call Validate before use.
func Load() (Config, error) {
	cfg := Config{
		Port:          defaultPort,
		StorageBucket: defaultStorageBucket,
		ScratchDir:    defaultScratchDir,
	}

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		// env still wins over file values below
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg.Port, "PORT")
	applyEnv(&cfg.Environment, "ENVIRONMENT")
	applyEnv(&cfg.CallbackSharedSecret, "WORKER_SHARED_SECRET")
	applyEnv(&cfg.TranscribeURL, "TRANSCRIBE_URL")
	applyEnv(&cfg.ClassifierURL, "CLASSIFIER_URL")
	applyEnv(&cfg.ModelConfigURL, "MODEL_CONFIG_URL")
	applyEnv(&cfg.StorageURL, "STORAGE_URL")
	applyEnv(&cfg.StorageBucket, "STORAGE_BUCKET")
	applyEnv(&cfg.StorageServiceKey, "STORAGE_SERVICE_KEY")
	applyEnv(&cfg.ScratchDir, "SCRATCH_DIR")

	return cfg, nil
}

// Validate checks that every required setting is present and returns a joined
// error listing all failures at once.
func (c Config) Validate() error {
	var errs []error
	if c.CallbackSharedSecret == "" {
		errs = append(errs, fmt.Errorf("WORKER_SHARED_SECRET is required"))
	}
	if c.TranscribeURL == "" && os.Getenv("USE_MOCK_TRANSCRIBE") != "true" {
		errs = append(errs, fmt.Errorf("TRANSCRIBE_URL is required"))
	}
	if os.Getenv("USE_MOCK_CLASSIFIER") != "true" {
		if c.ClassifierURL == "" {
			errs = append(errs, fmt.Errorf("CLASSIFIER_URL is required"))
		}
		if c.ModelConfigURL == "" {
			errs = append(errs, fmt.Errorf("MODEL_CONFIG_URL is required"))
		}
	}
	if c.StorageURL == "" {
		errs = append(errs, fmt.Errorf("STORAGE_URL is required"))
	}
	if c.StorageServiceKey == "" {
		errs = append(errs, fmt.Errorf("STORAGE_SERVICE_KEY is required"))
	}
	return errors.Join(errs...)
}

func applyEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
