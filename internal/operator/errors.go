package operator

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/datagridgo/internal/record"
)

// ConfigError reports an invalid or missing configuration parameter.
type ConfigError struct {
	// Field is the dotted attribute path, empty for whole-document problems.
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("field '%s': %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Invalid builds a ConfigError for field with a formatted message.
func Invalid(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// ConfigErrors flattens err into the ConfigErrors it carries. Errors that are
// not ConfigErrors are wrapped into one without a field.
func ConfigErrors(err error) []*ConfigError {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*ConfigError
		for _, e := range joined.Unwrap() {
			out = append(out, ConfigErrors(e)...)
		}
		return out
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return []*ConfigError{ce}
	}
	return []*ConfigError{{Err: err}}
}

// PathField parses a record path taken from the config attribute field.
func PathField(field, raw string) (record.Path, error) {
	p, err := record.ParsePath(raw)
	if err != nil {
		return record.Path{}, &ConfigError{Field: field, Err: err}
	}
	return p, nil
}
