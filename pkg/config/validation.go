package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural and range errors.
//
// All field failures are reported at once, one per line, keyed by their
// YAML path (e.g. "client.retry.jitter").
func Validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(yamlTagName)

	if err := v.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}

		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, formatFieldError(fe))
		}
		return errors.New(strings.Join(msgs, "\n"))
	}

	return nil
}

// formatFieldError renders one validator failure.
func formatFieldError(fe validator.FieldError) string {
	path := fieldPath(fe.Namespace())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: is required", path)
	case "required_if":
		return fmt.Sprintf("%s: is required when %s", path, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s], got %v", path, fe.Param(), fe.Value())
	case "min", "gte", "gt", "max", "lte":
		return fmt.Sprintf("%s: must satisfy %s=%s, got %v", path, fe.Tag(), fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s: must be at least %s", path, strings.ToLower(fe.Param()))
	case "startswith":
		return fmt.Sprintf("%s: must start with %q", path, fe.Param())
	case "url":
		return fmt.Sprintf("%s: must be a valid URL, got %v", path, fe.Value())
	default:
		return fmt.Sprintf("%s: failed %q check", path, fe.Tag())
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// yamlTagName names fields after their YAML key.
func yamlTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
