package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers this proxy's validation rules. Must be
// called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("env_kv", validateEnvKV); err != nil {
		return fmt.Errorf("failed to register env_kv validator: %w", err)
	}
	return nil
}

// validateEnvKV validates a backend Env entry has the "KEY=VALUE" shape
// os/exec expects, with a non-empty key.
func validateEnvKV(fl validator.FieldLevel) bool {
	kv := fl.Field().String()
	idx := strings.IndexByte(kv, '=')
	return idx > 0
}

// Validate validates Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateHasBackends(); err != nil {
		return err
	}
	if err := c.validateUniqueNames(); err != nil {
		return err
	}

	return nil
}

// validateHasBackends enforces spec.md §4.7's precondition: if no Default
// backend and no named backends are configured, this is a ConfigError and
// the orchestrator must refuse to start rather than listen on an empty mux.
func (c *Config) validateHasBackends() error {
	if c.Default == nil && len(c.Backends) == 0 {
		return errors.New("config: no backends configured (set default or backends)")
	}
	return nil
}

// validateUniqueNames ensures named backends don't collide with each other
// or with the reserved "default" name (which addresses Config.Default, not
// an entry in Backends).
func (c *Config) validateUniqueNames() error {
	seen := make(map[string]struct{}, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required for a named backend", i)
		}
		if b.Name == "default" {
			return fmt.Errorf("backends[%d]: %q is reserved for the unnamed default backend", i, b.Name)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("backends[%d]: duplicate backend name %q", i, b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "env_kv":
		return fmt.Sprintf("%s must have the form KEY=VALUE", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
