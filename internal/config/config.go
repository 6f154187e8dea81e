package config

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cptspacemanspiff/eco-monitor/internal/score"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/eco-monitor/config.toml"

const (
	minPollIntervalSeconds  = 1
	maxPollIntervalSeconds  = 3600
	minRetentionDays        = 1
	maxRetentionDays        = 3650
	minCleanupIntervalHours = 1
	maxCleanupIntervalHours = 720
)

type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Journal    JournalConfig    `toml:"journal"`
	Bridge     BridgeConfig     `toml:"bridge"`
	Collection CollectionConfig `toml:"collection"`
	Scoring    ScoringConfig    `toml:"scoring"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
	// MountPath is the filesystem whose capacity getTotalStorage reports.
	MountPath string `toml:"mount_path"`
}

type JournalConfig struct {
	Enabled              bool `toml:"enabled"`
	RetentionDays        int  `toml:"retention_days"`
	CleanupIntervalHours int  `toml:"cleanup_interval_hours"`
}

type BridgeConfig struct {
	DBus bool `toml:"dbus"`
	// Bus is "system" or "session".
	Bus string `toml:"bus"`
	// HTTPAddr is the listen address of the HTTP mirror; empty disables it.
	HTTPAddr string `toml:"http_addr"`
	Metrics  bool   `toml:"metrics"`
}

type CollectionConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

type ScoringConfig struct {
	EcoPredicates    []string `toml:"eco_predicates"`
	LowEndPredicates []string `toml:"low_end_predicates"`
	LowEndThreshold  int      `toml:"low_end_threshold"`
	// MinKernel is the "major.minor" release below which the platform is old.
	MinKernel     string `toml:"min_kernel"`
	FailurePolicy string `toml:"failure_policy"`
}

func DefaultConfig() *Config {
	policy := score.DefaultPolicy()
	return &Config{
		Storage: StorageConfig{
			DBPath:    "/var/lib/eco-monitor/journal.db",
			MountPath: "/",
		},
		Journal: JournalConfig{
			Enabled:              true,
			RetentionDays:        7,
			CleanupIntervalHours: 24,
		},
		Bridge: BridgeConfig{
			DBus:     true,
			Bus:      "system",
			HTTPAddr: "127.0.0.1:9475",
			Metrics:  true,
		},
		Collection: CollectionConfig{
			PollIntervalSeconds: 5,
		},
		Scoring: ScoringConfig{
			EcoPredicates:    predicateNames(policy.Eco),
			LowEndPredicates: predicateNames(policy.LowEnd),
			LowEndThreshold:  policy.LowEndThreshold,
			MinKernel:        policy.MinKernel.String(),
			FailurePolicy:    policy.Failure.String(),
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

// LoadOrDefault loads path, falling back to the defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	sanitized.Storage.MountPath, err = sanitizePath("storage.mount_path", sanitized.Storage.MountPath)
	if err != nil {
		return nil, err
	}

	if err := validateRange("journal.retention_days", sanitized.Journal.RetentionDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("journal.cleanup_interval_hours", sanitized.Journal.CleanupIntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours); err != nil {
		return nil, err
	}

	sanitized.Bridge.Bus = strings.ToLower(strings.TrimSpace(sanitized.Bridge.Bus))
	if sanitized.Bridge.Bus != "system" && sanitized.Bridge.Bus != "session" {
		return nil, fmt.Errorf("bridge.bus must be \"system\" or \"session\", got %q", cfg.Bridge.Bus)
	}
	sanitized.Bridge.HTTPAddr = strings.TrimSpace(sanitized.Bridge.HTTPAddr)
	if sanitized.Bridge.HTTPAddr != "" {
		if _, _, err := net.SplitHostPort(sanitized.Bridge.HTTPAddr); err != nil {
			return nil, fmt.Errorf("bridge.http_addr: %w", err)
		}
	}

	if err := validateRange("collection.poll_interval_seconds", sanitized.Collection.PollIntervalSeconds, minPollIntervalSeconds, maxPollIntervalSeconds); err != nil {
		return nil, err
	}

	sanitized.Scoring.EcoPredicates = append([]string(nil), cfg.Scoring.EcoPredicates...)
	sanitized.Scoring.LowEndPredicates = append([]string(nil), cfg.Scoring.LowEndPredicates...)
	if _, err := sanitized.Scoring.Policy(); err != nil {
		return nil, err
	}

	return &sanitized, nil
}

// Policy converts the scoring section into a scorer policy.
func (s ScoringConfig) Policy() (score.Policy, error) {
	eco, err := parsePredicates("scoring.eco_predicates", s.EcoPredicates)
	if err != nil {
		return score.Policy{}, err
	}
	lowEnd, err := parsePredicates("scoring.low_end_predicates", s.LowEndPredicates)
	if err != nil {
		return score.Policy{}, err
	}
	if err := validateRange("scoring.low_end_threshold", s.LowEndThreshold, 0, len(lowEnd)); err != nil {
		return score.Policy{}, err
	}
	minKernel, err := parseVersion(s.MinKernel)
	if err != nil {
		return score.Policy{}, fmt.Errorf("scoring.min_kernel: %w", err)
	}
	failure, err := score.ParseFailurePolicy(strings.TrimSpace(s.FailurePolicy))
	if err != nil {
		return score.Policy{}, fmt.Errorf("scoring.failure_policy: %w", err)
	}
	return score.Policy{
		Eco:             eco,
		LowEnd:          lowEnd,
		LowEndThreshold: s.LowEndThreshold,
		MinKernel:       minKernel,
		Failure:         failure,
	}, nil
}

func (c CollectionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (j JournalConfig) Retention() time.Duration {
	return time.Duration(j.RetentionDays) * 24 * time.Hour
}

func (j JournalConfig) CleanupInterval() time.Duration {
	return time.Duration(j.CleanupIntervalHours) * time.Hour
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := Encode(&data, sanitized); err != nil {
		return err
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}
	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}

func parsePredicates(name string, values []string) ([]score.Predicate, error) {
	preds := make([]score.Predicate, 0, len(values))
	seen := make(map[score.Predicate]bool, len(values))
	for _, v := range values {
		p, err := score.ParsePredicate(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if seen[p] {
			return nil, fmt.Errorf("%s: duplicate predicate %q", name, p)
		}
		seen[p] = true
		preds = append(preds, p)
	}
	return preds, nil
}

func parseVersion(s string) (score.Version, error) {
	majStr, minStr, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return score.Version{}, fmt.Errorf("want major.minor, got %q", s)
	}
	major, err := strconv.Atoi(majStr)
	if err != nil {
		return score.Version{}, fmt.Errorf("want major.minor, got %q", s)
	}
	minor, err := strconv.Atoi(minStr)
	if err != nil {
		return score.Version{}, fmt.Errorf("want major.minor, got %q", s)
	}
	return score.Version{Major: major, Minor: minor}, nil
}

func predicateNames(preds []score.Predicate) []string {
	names := make([]string, len(preds))
	for i, p := range preds {
		names[i] = string(p)
	}
	return names
}
