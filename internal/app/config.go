package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Cache modes.
const (
	CacheOff    = "off"
	CacheMemory = "memory"
	CacheDisk   = "disk"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string `validate:"required"`
	// InputPath is a JSONL file of records; empty reads standard input.
	InputPath string
	// OutputPath receives the result records as JSONL; empty writes to the
	// App's output stream.
	OutputPath string
	// StatsPath receives the run statistics as JSON. Empty disables it.
	StatsPath string
	// AssignIDs gives records read without an id a generated one.
	AssignIDs bool

	CacheMode string `validate:"oneof=off memory disk"`
	CacheDir  string `validate:"required_if=CacheMode disk"`

	Policy      string `validate:"omitempty,oneof=fail_fast skip_errors"`
	Parallelism int    `validate:"gte=0"`
	// Env entries are mixed into every cache key.
	Env map[string]string `validate:"dive,keys,required,endkeys"`

	LogFormat       string `validate:"oneof=text json"`
	LogLevel        string `validate:"oneof=debug info warn error"`
	HealthcheckPort int    `validate:"gte=0,lte=65535"`
}

var configValidate = validator.New(validator.WithRequiredStructEnabled())

// NewConfig fills defaults and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.CacheMode == "" {
		cfg.CacheMode = CacheOff
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := configValidate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return &cfg, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_if":
		return fmt.Sprintf("%s is required when %s", fe.Field(), strings.Replace(fe.Param(), " ", " is ", 1))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got '%v'", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed '%s' (value '%v')", fe.Field(), fe.Tag(), fe.Value())
	}
}
