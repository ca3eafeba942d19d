package weaviatedb

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/yungbote/videograph/internal/platform/envutil"
)

type Config struct {
	URL            string
	APIKey         string
	Class          string
	TimeoutSeconds int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL   ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL   ConfigErrorCode = "invalid_url"
	ConfigErrorMissingClass ConfigErrorCode = "missing_class"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid weaviate config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "WEAVIATE_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf(
			"invalid WEAVIATE_URL=%q; expected absolute URL like http://weaviate:8080",
			e.Value,
		)
	case ConfigErrorMissingClass:
		return "WEAVIATE_CLASS is required"
	default:
		return "invalid weaviate config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:            strings.TrimSpace(os.Getenv("WEAVIATE_URL")),
		APIKey:         strings.TrimSpace(os.Getenv("WEAVIATE_API_KEY")),
		Class:          envutil.Str("WEAVIATE_CLASS", "Segment"),
		TimeoutSeconds: envutil.Int("WEAVIATE_TIMEOUT_SECONDS", 30),
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{
			Code:  ConfigErrorInvalidURL,
			Value: cfg.URL,
			Cause: err,
		}
	}
	if strings.TrimSpace(cfg.Class) == "" {
		return &ConfigError{Code: ConfigErrorMissingClass}
	}
	return nil
}
