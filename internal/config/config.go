// Package config loads the CLI configuration: defaults, then an optional
// YAML or JSON file, then ORDERFLOW_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/orderflow/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ORDERFLOW_"

// Config is the runtime configuration of the orderflow binary.
type Config struct {
	// EntryStage overrides the entry declared by the stage source.
	EntryStage string `mapstructure:"entry_stage" yaml:"entry_stage,omitempty"`
	// StagesFile is a YAML stage declaration. StagesDir is a Loam repository.
	// At most one may be set; the built-in graph is used otherwise.
	StagesFile  string `mapstructure:"stages_file" yaml:"stages_file,omitempty"`
	StagesDir   string `mapstructure:"stages_dir" yaml:"stages_dir,omitempty"`
	CatalogFile string `mapstructure:"catalog_file" yaml:"catalog_file,omitempty"`
	// RulesFile replaces the built-in keyword table and rules.
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file,omitempty"`

	Backend      BackendConfig `mapstructure:"backend" yaml:"backend"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`
	HTTP         HTTPConfig    `mapstructure:"http" yaml:"http"`
	Redis        RedisConfig   `mapstructure:"redis" yaml:"redis"`
	OTLP         OTLPConfig    `mapstructure:"otlp" yaml:"otlp"`
	MaxInputSize int           `mapstructure:"max_input_size" yaml:"max_input_size"`
}

type BackendConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Script is a scripted-backend YAML file. Empty means no backend.
	Script string `mapstructure:"script" yaml:"script,omitempty"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// RedisConfig enables distributed turn locking when Addr is set.
type RedisConfig struct {
	Addr    string        `mapstructure:"addr" yaml:"addr,omitempty"`
	Prefix  string        `mapstructure:"prefix" yaml:"prefix"`
	LockTTL time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

// OTLPConfig enables trace export when Endpoint is set.
type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:      BackendConfig{Timeout: 10 * time.Second},
		LogLevel:     "info",
		HTTP:         HTTPConfig{Addr: ":8080"},
		Redis:        RedisConfig{Prefix: "orderflow:", LockTTL: 30 * time.Second},
		MaxInputSize: 4096,
	}
}

// Load reads path (optional) and the process environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injected environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		// JSON is a subset of YAML, so one parser covers both extensions.
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := decode(doc, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := decode(envOverrides(lookup), &cfg); err != nil {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func decode(input map[string]any, cfg *Config) error {
	if len(input) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// envKeys maps environment suffixes to config paths.
var envKeys = map[string][]string{
	"ENTRY_STAGE":     {"entry_stage"},
	"STAGES_FILE":     {"stages_file"},
	"STAGES_DIR":      {"stages_dir"},
	"CATALOG_FILE":    {"catalog_file"},
	"RULES_FILE":      {"rules_file"},
	"BACKEND_TIMEOUT": {"backend", "timeout"},
	"BACKEND_SCRIPT":  {"backend", "script"},
	"LOG_LEVEL":       {"log_level"},
	"HTTP_ADDR":       {"http", "addr"},
	"REDIS_ADDR":      {"redis", "addr"},
	"REDIS_PREFIX":    {"redis", "prefix"},
	"REDIS_LOCK_TTL":  {"redis", "lock_ttl"},
	"OTLP_ENDPOINT":   {"otlp", "endpoint"},
	"MAX_INPUT_SIZE":  {"max_input_size"},
}

func envOverrides(lookup func(string) (string, bool)) map[string]any {
	out := make(map[string]any)
	for suffix, path := range envKeys {
		v, ok := lookup(EnvPrefix + suffix)
		if !ok {
			continue
		}
		node := out
		for _, key := range path[:len(path)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[key] = child
			}
			node = child
		}
		node[path[len(path)-1]] = v
	}
	return out
}

// Validate checks field combinations.
func (c Config) Validate() error {
	var errs []string
	if c.StagesFile != "" && c.StagesDir != "" {
		errs = append(errs, "stages_file and stages_dir are mutually exclusive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}
	if c.MaxInputSize <= 0 {
		errs = append(errs, "max_input_size must be positive")
	}
	if c.Backend.Timeout < 0 {
		errs = append(errs, "backend.timeout must not be negative")
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		errs = append(errs, "redis.lock_ttl must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Encode writes c as YAML.
func (c Config) Encode() ([]byte, error) {
	return yaml.Marshal(c)
}
