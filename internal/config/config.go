package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "FILESAFE_"

	DefaultBackupDir       = ".filesafe/backups"
	DefaultBackupRetention = 10
	DefaultMaxContentSize  = "1GiB"

	// MemoryState keeps the backup index and journal in memory.
	MemoryState = ":memory:"
)

type Config struct {
	BackupDir       string `koanf:"backup_dir"`
	BackupRetention int    `koanf:"backup_retention"`
	CompressBackups bool   `koanf:"compress_backups"`
	CacheSize       int    `koanf:"cache_size"`
	MaxContentSize  string `koanf:"max_content_size"` // humanized, e.g. "1GiB", "512MB"

	// StateDir holds the badger index. Empty means a "state" directory next
	// to BackupDir; MemoryState keeps the index in memory.
	StateDir string `koanf:"state_dir"`

	AuditBackend string        `koanf:"audit_backend"` // "", file, sqlite, badger
	AuditPath    string        `koanf:"audit_path"`
	AuditMaxAge  time.Duration `koanf:"audit_max_age"`

	LogLevel       string `koanf:"log_level"` // debug, info, warn, error
	LogDevelopment bool   `koanf:"log_development"`
}

func defaults() map[string]any {
	return map[string]any{
		"backup_dir":       DefaultBackupDir,
		"backup_retention": DefaultBackupRetention,
		"compress_backups": false,
		"cache_size":       128,
		"max_content_size": DefaultMaxContentSize,
		"state_dir":        "",
		"audit_backend":    "",
		"audit_path":       "",
		"audit_max_age":    "720h",
		"log_level":        "info",
		"log_development":  false,
	}
}

// Default returns the configuration used when no file or environment is given.
func Default() *Config {
	cfg, err := load(nil)
	if err != nil {
		// defaults are static; failing here is a programming error
		panic(err)
	}
	return cfg
}

type source struct {
	provider koanf.Provider
	parser   koanf.Parser
}

// Load layers defaults, the JSON file at path (skipped when path is empty)
// and FILESAFE_* environment variables, in that order.
func Load(path string) (*Config, error) {
	var sources []source
	if path != "" {
		sources = append(sources, source{file.Provider(path), json.Parser()})
	}
	sources = append(sources, source{env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil})
	return load(sources)
}

func load(sources []source) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	for _, src := range sources {
		if err := k.Load(src.provider, src.parser); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required")
	}
	if c.BackupRetention < 1 {
		return fmt.Errorf("backup_retention must be at least 1, got %d", c.BackupRetention)
	}
	if _, err := c.MaxContentBytes(); err != nil {
		return err
	}
	switch c.AuditBackend {
	case "", "file", "sqlite", "badger":
	default:
		return fmt.Errorf("unknown audit_backend %q", c.AuditBackend)
	}
	if c.AuditBackend != "" && c.AuditBackend != "badger" && c.AuditPath == "" {
		return fmt.Errorf("audit_path is required for audit_backend %q", c.AuditBackend)
	}
	return nil
}

// IndexDir returns the directory of the persistent index, or "" when the
// index is kept in memory.
func (c *Config) IndexDir() string {
	switch c.StateDir {
	case MemoryState:
		return ""
	case "":
		return filepath.Join(filepath.Dir(c.BackupDir), "state")
	}
	return c.StateDir
}

// MaxContentBytes parses MaxContentSize.
func (c *Config) MaxContentBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxContentSize)
	if err != nil {
		return 0, fmt.Errorf("parsing max_content_size %q: %w", c.MaxContentSize, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("max_content_size must be positive")
	}
	return int64(n), nil
}
