// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultProtocol       = "ca"
	DefaultTimeoutMs      = 2000
	DefaultMaxInFlight    = 64
	DefaultPollIntervalMs = 500
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	c := &cfg.Control
	if c.DefaultProtocol == "" {
		// a single shim is the obvious default route
		c.DefaultProtocol = DefaultProtocol
		if len(c.Shims) == 1 {
			c.DefaultProtocol = c.Shims[0].Tag
		}
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}

	for i := range c.Shims {
		s := &c.Shims[i]
		if s.TimeoutMs == 0 {
			s.TimeoutMs = c.TimeoutMs
		}
		if s.Kind == ShimModbus && s.PollIntervalMs == 0 {
			s.PollIntervalMs = DefaultPollIntervalMs
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
