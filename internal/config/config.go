// Package config loads catchup settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Event store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Projector state backends.
const (
	StateSQL   = "sql"
	StateBbolt = "bbolt"
)

// Config holds every CATCHUP_ setting.
type Config struct {
	Driver          string        `env:"DRIVER" envDefault:"sqlite"`
	DSN             string        `env:"DSN" envDefault:"catchup.db"`
	EventsTable     string        `env:"EVENTS_TABLE" envDefault:"events"`
	StatesTable     string        `env:"STATES_TABLE" envDefault:"projector_states"`
	StateBackend    string        `env:"STATE_BACKEND" envDefault:"sql"`
	BboltPath       string        `env:"BBOLT_PATH" envDefault:"catchup-states.db"`
	ArchiveDir      string        `env:"ARCHIVE_DIR" envDefault:"archive"`
	ChunkSize       int           `env:"CHUNK_SIZE" envDefault:"1000"`
	ProjectorName   string        `env:"PROJECTOR_NAME"`
	BatchSize       int           `env:"BATCH_SIZE" envDefault:"512"`
	IdleSleep       time.Duration `env:"IDLE_SLEEP" envDefault:"200ms"`
	Follow          bool          `env:"FOLLOW" envDefault:"false"`
	LiveRetention   time.Duration `env:"LIVE_RETENTION" envDefault:"0s"`
	Verbose         bool          `env:"VERBOSE" envDefault:"false"`
	OTelEnabled     bool          `env:"OTEL_ENABLED" envDefault:"true"`
	OTelEndpoint    string        `env:"OTEL_ENDPOINT"`
	OTelServiceName string        `env:"OTEL_SERVICE_NAME" envDefault:"catchup"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CATCHUP_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings shared by every subcommand.
func (c Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unsupported driver %q", c.Driver))
	}
	if c.Driver != DriverMemory && strings.TrimSpace(c.DSN) == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	if c.Driver == DriverPostgres && (c.EventsTable == "" || c.StatesTable == "") {
		errs = append(errs, errors.New("table names must not be empty"))
	}
	switch c.StateBackend {
	case StateSQL:
	case StateBbolt:
		if strings.TrimSpace(c.BboltPath) == "" {
			errs = append(errs, errors.New("bbolt path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported state backend %q", c.StateBackend))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk size must be positive"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.IdleSleep <= 0 {
		errs = append(errs, errors.New("idle sleep must be positive"))
	}
	if c.LiveRetention < 0 {
		errs = append(errs, errors.New("live retention must not be negative"))
	}
	return errors.Join(errs...)
}

// RequireProjector checks the settings needed to run a projector.
func (c Config) RequireProjector() error {
	if strings.TrimSpace(c.ProjectorName) == "" {
		return errors.New("projector name is required")
	}
	return nil
}
