package config

import (
	stderrors "errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/wippyai/lacewing/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateConfig, Config{})
	return v
}

// validateConfig checks the rules spanning more than one field.
func validateConfig(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.SecurePort != 0 && c.Certificate.File == "" {
		sl.ReportError(c.Certificate.File, "certificate.file", "File", "required_with_secure_port", "")
	}
	if c.Wasm != "" && c.Port == 0 && c.SecurePort == 0 {
		sl.ReportError(c.Port, "port", "Port", "required_with_wasm", "")
	}
	if c.Sessions.Purge != "" {
		if _, err := cron.ParseStandard(c.Sessions.Purge); err != nil {
			sl.ReportError(c.Sessions.Purge, "sessions.purge", "Purge", "cron", "")
		}
	}
}

// Validate checks c and reports the first violation as a config error whose
// path is the offending YAML key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !stderrors.As(err, &fields) || len(fields) == 0 {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "validate")
	}
	fe := fields[0]
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(fieldPath(fe)...).
		Detail("failed %q rule", fe.Tag()).
		Cause(err).
		Build()
}

// fieldPath turns "Config.sessions.ttl" into [sessions ttl].
func fieldPath(fe validator.FieldError) []string {
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) > 1 {
		return parts[1:]
	}
	return parts
}
