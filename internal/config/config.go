package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	InboxDir string `toml:"inbox_dir"`
}

// Workflow contains worker loop timing and batch limits.
type Workflow struct {
	PollInterval        int     `toml:"poll_interval"`
	MaxPollInterval     int     `toml:"max_poll_interval"`
	IdleBackoffFactor   float64 `toml:"idle_backoff_factor"`
	PipelineBatch       int     `toml:"pipeline_batch"`
	RescanBatch         int     `toml:"rescan_batch"`
	StartBatch          int     `toml:"start_batch"`
	PromotionBatch      int     `toml:"promotion_batch"`
	DocumentBatch       int     `toml:"document_batch"`
	CheckpointHeartbeat int     `toml:"checkpoint_heartbeat"`
	ShutdownDrain       int     `toml:"shutdown_drain"`
	ShutdownTimeout     int     `toml:"shutdown_timeout"`
}

// LLM contains shared connection settings for the model-backed collaborators.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Mapping contains semantic topic-mapping settings.
type Mapping struct {
	Enabled       bool    `toml:"enabled"`
	MinConfidence float64 `toml:"min_confidence"`
}

// Transform contains content transformation settings.
type Transform struct {
	MaxItemsPerMapping int     `toml:"max_items_per_mapping"`
	RetryAttempts      int     `toml:"retry_attempts"`
	Temperature        float64 `toml:"temperature"`
}

// Gates contains quality gate toggles and thresholds.
type Gates struct {
	LevelCheck         bool    `toml:"level_check"`
	Orthography        bool    `toml:"orthography"`
	Safety             bool    `toml:"safety"`
	Duplicate          bool    `toml:"duplicate"`
	DuplicateThreshold float64 `toml:"duplicate_threshold"`
}

// Ingest contains document intake settings.
type Ingest struct {
	InboxEnabled      bool     `toml:"inbox_enabled"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	DefaultLanguage   string   `toml:"default_language"`
	DefaultLevel      string   `toml:"default_level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Review         bool   `toml:"review"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for lectern.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and inbox directories
//   - Workflow: worker loop intervals, batch limits, and shutdown timing
//   - LLM: shared model connection settings for mapping and transformation
//   - Mapping: semantic topic-mapping behavior
//   - Transform: content transformation behavior and retry budget
//   - Gates: quality gate toggles and thresholds
//   - Ingest: document intake rules and defaults
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	LLM           LLM           `toml:"llm"`
	Mapping       Mapping       `toml:"mapping"`
	Transform     Transform     `toml:"transform"`
	Gates         Gates         `toml:"gates"`
	Ingest        Ingest        `toml:"ingest"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lectern/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lectern.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// DatabasePath returns the absolute path of the SQLite database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "lectern.db")
}

// DocumentsDir returns the directory where ingested source files are stored.
func (c *Config) DocumentsDir() string {
	return filepath.Join(c.Paths.DataDir, "documents")
}

// EnsureDirectories creates required directories for daemon operation. The
// inbox directory is created on a best-effort basis so the daemon can run when
// the watch location is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.DocumentsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.InboxDir) != "" {
		_ = os.MkdirAll(c.Paths.InboxDir, 0o755)
	}
	return nil
}

// ExtensionAllowed reports whether a filename extension is accepted for ingest.
func (c *Config) ExtensionAllowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, allowed := range c.Ingest.AllowedExtensions {
		if strings.EqualFold(strings.TrimSpace(allowed), ext) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
