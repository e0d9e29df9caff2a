package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file of agroledger. Command-line flags
// override individual fields.
type Config struct {
	DBPath         string `yaml:"db_path"`
	InMemory       bool   `yaml:"in_memory"`
	MmapSize       int    `yaml:"mmap_size"`
	MaxRegionPages uint64 `yaml:"max_region_pages"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // "console" | "json"
	Verbose        bool   `yaml:"verbose"`
}

func DefaultConfig() Config {
	return Config{
		DBPath:    "agroledger.db",
		LogLevel:  "warn",
		LogFormat: "console",
	}
}

// LoadConfig reads path on top of DefaultConfig. Unknown keys are rejected;
// values are checked by Validate once flag overrides have been applied.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	err = dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if !cfg.InMemory && cfg.DBPath == "" {
		return fmt.Errorf("db_path is required unless in_memory is set")
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log_format %q: must be console or json", cfg.LogFormat)
	}
	if cfg.MmapSize < 0 {
		return fmt.Errorf("invalid mmap_size %d", cfg.MmapSize)
	}
	return nil
}

// NewLogger builds the process logger. Every line carries an invocation id so
// that logs of concurrent CLI runs against one store can be told apart.
func (cfg *Config) NewLogger(w io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	if cfg.LogFormat == "json" {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(level))
	return zap.New(core).With(zap.String("invocation", uuid.NewString())), nil
}
