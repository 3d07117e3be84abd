// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}

	// ------------------------------------------------------------
	// FIELD RULES (struct tags)
	// ------------------------------------------------------------

	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return fmt.Errorf("config: %s", strings.Join(msgs, " | "))
	}

	// ------------------------------------------------------------
	// BACKEND: kind-specific requirements
	// ------------------------------------------------------------

	b := cfg.Backend
	switch b.Kind {
	case BackendFilestore, BackendDirectory, BackendSQLite:
		if b.Path == "" {
			return fmt.Errorf("config: backend %q requires path", b.Kind)
		}
	case BackendBadger:
		if b.Path == "" && !b.InMemory {
			return fmt.Errorf("config: backend %q requires path unless in_memory is set", b.Kind)
		}
	case BackendPostgres:
		if b.DSN == "" {
			return fmt.Errorf("config: backend %q requires dsn", b.Kind)
		}
	case BackendS3:
		if b.S3.Bucket == "" {
			return fmt.Errorf("config: backend %q requires s3.bucket", b.Kind)
		}
		if (b.S3.AccessKeyID == "") != (b.S3.SecretAccessKey == "") {
			return fmt.Errorf("config: backend %q: s3.access_key_id and s3.secret_access_key must be set together", b.Kind)
		}
	}

	// ------------------------------------------------------------
	// SHIMS: unique tags, endpoints where needed
	// ------------------------------------------------------------

	seen := make(map[string]int)
	for i, s := range cfg.Control.Shims {
		if prev, exists := seen[s.Tag]; exists {
			return fmt.Errorf("config: shim tag %q used by shims %d and %d", s.Tag, prev, i)
		}
		seen[s.Tag] = i

		switch s.Kind {
		case ShimModbus, ShimIngest:
			if s.Endpoint == "" {
				return fmt.Errorf("config: shim %q (%s) requires endpoint", s.Tag, s.Kind)
			}
			if len(s.Values) > 0 {
				return fmt.Errorf("config: shim %q (%s): values apply to sim shims only", s.Tag, s.Kind)
			}
		case ShimSim:
			if s.Endpoint != "" {
				return fmt.Errorf("config: shim %q (sim) takes no endpoint", s.Tag)
			}
		}
	}

	// default protocol must route somewhere when shims are declared
	if dp := cfg.Control.DefaultProtocol; dp != "" && len(cfg.Control.Shims) > 0 {
		if _, ok := seen[dp]; !ok {
			return fmt.Errorf("config: default_protocol %q names no configured shim", dp)
		}
	}

	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value())
}
