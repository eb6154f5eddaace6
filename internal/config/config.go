package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/cisclient/internal/common"
	perr "github.com/jo-hoe/cisclient/internal/errors"
)

// Config is the process-wide, read-only client configuration.
type Config struct {
	BaseURL            string `json:"baseUrl" yaml:"baseUrl" validate:"required,url"`
	APIKey             string `json:"apiKey" yaml:"apiKey" validate:"required"`
	APIKeyHeader       string `json:"apiKeyHeader" yaml:"apiKeyHeader" validate:"required"`
	ErrorCloseSeconds  int    `json:"errorCloseSeconds" yaml:"errorCloseSeconds" validate:"gt=0"`
	PollingRateSeconds int    `json:"pollingRateSeconds" yaml:"pollingRateSeconds" validate:"gt=0"`
	SeparateJobs       bool   `json:"separateJobs" yaml:"separateJobs"`
	TrustCerts         bool   `json:"trustCerts" yaml:"trustCerts"`
	MaxPollSeconds     int    `json:"maxPollSeconds,omitempty" yaml:"maxPollSeconds,omitempty" validate:"gte=0"` // 0 polls until a terminal status
}

// Default returns the settings written to a fresh config file.
func Default() Config {
	return Config{
		BaseURL:            common.DefaultBaseURL,
		APIKey:             common.DefaultAPIKey,
		APIKeyHeader:       common.HeaderAPIKeyDefault,
		ErrorCloseSeconds:  common.DefaultErrorCloseSeconds,
		PollingRateSeconds: common.DefaultPollingRateSeconds,
		SeparateJobs:       false,
		TrustCerts:         false,
	}
}

// PollInterval is the wait between two status checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollingRateSeconds) * time.Second
}

// ErrorCloseDelay is the countdown shown before a fatal exit.
func (c *Config) ErrorCloseDelay() time.Duration {
	return time.Duration(c.ErrorCloseSeconds) * time.Second
}

// MaxPollDuration bounds the polling phase; zero means unbounded.
func (c *Config) MaxPollDuration() time.Duration {
	return time.Duration(c.MaxPollSeconds) * time.Second
}

// ResolvePath picks the config path: explicit value, then CIS_CONFIG, then appsettings.json.
func ResolvePath(path string) string {
	if strings.TrimSpace(path) != "" {
		return filepath.Clean(path)
	}
	if env := os.Getenv(common.ConfigEnvVar); env != "" {
		return filepath.Clean(env)
	}
	return common.ConfigFileName
}

// LoadOrCreate writes Default() to path when the file is absent, then loads it.
// created reports whether a default file was written.
func LoadOrCreate(fsys afero.Fs, path string) (cfg *Config, created bool, err error) {
	path = ResolvePath(path)
	if _, statErr := fsys.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		if err := Save(fsys, path, Default()); err != nil {
			return nil, false, err
		}
		created = true
	} else if statErr != nil {
		return nil, false, perr.Wrap(statErr, perr.KindConfig, "config", "stat config")
	}
	cfg, err = Load(fsys, path)
	return cfg, created, err
}

// Load reads the config file, expands environment variables, and validates it.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func Load(fsys afero.Fs, path string) (*Config, error) {
	path = ResolvePath(path)
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, perr.Wrap(err, perr.KindConfig, "config", "read config")
	}
	// Expand environment variables in file content.
	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(expanded, &cfg)
	} else {
		err = json.Unmarshal(expanded, &cfg)
	}
	if err != nil {
		return nil, perr.Wrap(err, perr.KindConfig, "config", fmt.Sprintf("parse %s", filepath.Base(path)))
	}

	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg as indented JSON (or YAML for .yaml/.yml paths), creating parent directories.
func Save(fsys afero.Fs, path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return perr.Wrap(err, perr.KindConfig, "config", "ensure config dir")
		}
	}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return perr.Wrap(err, perr.KindConfig, "config", "encode config")
	}
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return perr.Wrap(err, perr.KindConfig, "config", fmt.Sprintf("create %s", filepath.Base(path)))
	}
	return nil
}

// Validate enforces non-empty strings and positive intervals.
func Validate(cfg *Config) error {
	if cfg == nil {
		return perr.Config("config is empty")
	}
	err := validate().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return perr.Wrap(err, perr.KindConfig, "config", "validate config")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return perr.Config("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be an absolute URL", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

var (
	vOnce sync.Once
	v     *validator.Validate
)

// validate returns the singleton validator, reporting fields by their json names.
func validate() *validator.Validate {
	vOnce.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
	})
	return v
}

func normalize(cfg *Config) {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.APIKeyHeader = strings.TrimSpace(cfg.APIKeyHeader)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
