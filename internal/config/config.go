// internal/config/config.go
package config

type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Control ControlConfig `yaml:"control"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Trace   TraceConfig   `yaml:"trace"`
}

// ---- BACKEND ----

// Backend kinds.
const (
	BackendMemory    = "memory"
	BackendFilestore = "filestore"
	BackendDirectory = "directory"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendS3        = "s3"
	BackendBadger    = "badger"
)

type BackendConfig struct {
	Kind     string   `yaml:"kind" validate:"required,oneof=memory filestore directory sqlite postgres s3 badger"`
	Path     string   `yaml:"path"`      // filestore, directory, sqlite, badger
	DSN      string   `yaml:"dsn"`       // postgres
	Table    string   `yaml:"table"`     // sqlite, postgres
	InMemory bool     `yaml:"in_memory"` // badger
	S3       S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	Key             string `yaml:"key"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ---- CONTROL ----

// Shim kinds.
const (
	ShimModbus = "modbus"
	ShimIngest = "ingest"
	ShimSim    = "sim"
)

type ControlConfig struct {
	DefaultProtocol string       `yaml:"default_protocol"`
	TimeoutMs       int          `yaml:"timeout_ms" validate:"gte=0"`
	MaxInFlight     int          `yaml:"max_in_flight" validate:"gte=0"`
	RatePerSecond   float64      `yaml:"rate_per_second" validate:"gte=0"`
	Shims           []ShimConfig `yaml:"shims" validate:"dive"`
}

type ShimConfig struct {
	Tag            string `yaml:"tag" validate:"required,alphanum"`
	Kind           string `yaml:"kind" validate:"required,oneof=modbus ingest sim"`
	Endpoint       string `yaml:"endpoint" validate:"omitempty,hostname_port"`
	UnitID         uint8  `yaml:"unit_id"`
	TimeoutMs      int    `yaml:"timeout_ms" validate:"gte=0"`
	PollIntervalMs int    `yaml:"poll_interval_ms" validate:"gte=0"`

	// Initial values for a sim shim, parsed like command-line values.
	Values map[string]string `yaml:"values"`
}

// ---- LOG / METRICS / TRACE ----

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the /metrics listener
}

type TraceConfig struct {
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=none stdout"`
}
