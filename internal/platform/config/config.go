package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultSnapshotTTL       = 24 * time.Hour
	defaultSessionCollection = "measurement_sessions"
	defaultTimezone          = "Asia/Seoul"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Firestore FirestoreConfig
	Session   SessionConfig
	Jobs      JobsConfig
	Locale    LocaleConfig
	Features  FeatureFlags
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// SessionConfig controls measurement-session snapshot persistence.
type SessionConfig struct {
	SnapshotTTL time.Duration
	Collection  string
}

// JobsConfig names the Pub/Sub resources used for post-confirmation side effects.
type JobsConfig struct {
	ProjectID      string
	ExportTopicID  string
	PublishTimeout time.Duration
}

// LocaleConfig holds locale-sensitive parameters such as the deadline timezone.
type LocaleConfig struct {
	Timezone string
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnableSessionResume bool
	EnableExportJobs    bool
}

// Location resolves the configured timezone, falling back to the default when unset or invalid.
func (c LocaleConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		name = defaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map taking precedence over system env vars.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.LookupEnv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, .env overrides, and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "MEASURE_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "MEASURE_FIRESTORE_EMULATOR_HOST", ""),
		},
		Session: SessionConfig{
			SnapshotTTL: durationWithDefault(lookup, "MEASURE_SESSION_SNAPSHOT_TTL", defaultSnapshotTTL),
			Collection:  stringWithDefault(lookup, "MEASURE_SESSION_COLLECTION", defaultSessionCollection),
		},
		Jobs: JobsConfig{
			ProjectID:      stringWithDefault(lookup, "MEASURE_JOBS_PROJECT_ID", ""),
			ExportTopicID:  stringWithDefault(lookup, "MEASURE_JOBS_EXPORT_TOPIC", ""),
			PublishTimeout: durationWithDefault(lookup, "MEASURE_JOBS_PUBLISH_TIMEOUT", 10*time.Second),
		},
		Locale: LocaleConfig{
			Timezone: stringWithDefault(lookup, "MEASURE_LOCALE_TIMEZONE", defaultTimezone),
		},
		Features: FeatureFlags{
			EnableSessionResume: boolWithDefault(lookup, "MEASURE_FEATURE_SESSION_RESUME", true),
			EnableExportJobs:    boolWithDefault(lookup, "MEASURE_FEATURE_EXPORT_JOBS", true),
		},
	}

	// Jobs project defaults to the Firestore project when unspecified.
	if cfg.Jobs.ProjectID == "" {
		cfg.Jobs.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Session.SnapshotTTL <= 0 {
		cfg.Session.SnapshotTTL = defaultSnapshotTTL
	}
	if strings.TrimSpace(cfg.Session.Collection) == "" {
		cfg.Session.Collection = defaultSessionCollection
	}

	return cfg, nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")
		if key == "" {
			continue
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
