package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const defaultConfigFile = "/config/config.yaml"

// Config is the runtime configuration. Values come from the defaults below,
// then the YAML file named by CONFIG_FILE, then environment variables. Each
// field is keyed by its snake_case name in YAML and its upper snake case
// name in the environment.
type Config struct {
	// Cache
	CacheDir           string        `koanf:"cache_dir" validate:"required"`
	BookmarksDir       string        `koanf:"bookmarks_dir" validate:"required"`
	ExtractTimeout     time.Duration `koanf:"extract_timeout" validate:"min=0"`
	MaxEntrySizeMB     int64         `koanf:"max_entry_size_mb" validate:"min=0"`
	CleanupConcurrency int           `koanf:"cleanup_concurrency" validate:"min=0"`

	// Database
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" validate:"required"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries"`

	// Server
	ServerHost      string `koanf:"server_host"`
	ServerPort      int    `koanf:"server_port" validate:"min=1,max=65535"`
	WorkerProcesses int    `koanf:"worker_processes" validate:"min=1"`

	// Set at startup, never read from configuration.
	Hostname string `koanf:"-"`
}

func defaults() *Config {
	return &Config{
		ExtractTimeout:            5 * time.Minute,
		MaxEntrySizeMB:            256,
		CleanupConcurrency:        4,
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		ServerHost:                "0.0.0.0",
		ServerPort:                3689,
		WorkerProcesses:           2,
	}
}

// New loads the configuration.
func New() (*Config, error) {
	cfg := defaults()
	keys := knownKeys()

	k := koanf.New(".")

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if !keys[key] {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"})
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	cfg.Hostname, err = os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return cfg, nil
}

// NewForTest returns a configuration suitable for tests. Callers point the
// cache directories at temporary directories themselves.
func NewForTest() *Config {
	cfg := defaults()
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerHost = "127.0.0.1"
	cfg.ExtractTimeout = 30 * time.Second
	cfg.CleanupConcurrency = 2
	return cfg
}

// MaxEntryBytes is the per-file extraction cap in bytes.
func (c *Config) MaxEntryBytes() int64 {
	return c.MaxEntrySizeMB << 20
}

func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}
	e := verrs[0]
	key := toSnakeCase(e.StructField())
	if e.Tag() == "required" {
		return errors.Errorf("missing required config: %s (%s)", strings.ToUpper(key), key)
	}
	return errors.Errorf("invalid config %s (%s): failed %q check", strings.ToUpper(key), key, e.Tag())
}

// knownKeys lists the koanf keys of Config so unrelated environment
// variables are ignored.
func knownKeys() map[string]bool {
	keys := map[string]bool{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("koanf")
		if tag != "" && tag != "-" {
			keys[tag] = true
		}
	}
	return keys
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
