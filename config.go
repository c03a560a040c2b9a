package neoogm

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// IDStrategy selects how generated statements identify nodes and
// relationships on the server.
type IDStrategy string

const (
	// ElementIDs uses elementId(), the default on Neo4j 5.
	ElementIDs IDStrategy = "element"
	// LegacyIDs uses id(), for servers that predate element ids.
	LegacyIDs IDStrategy = "legacy"
)

// Config holds the connection settings of a Neo4jExecutor and the options of
// a Template. It is usually read from the environment with LoadConfig.
type Config struct {
	URI      string `env:"NEO4J_URI" envDefault:"neo4j://localhost:7687"`
	Username string `env:"NEO4J_USERNAME" envDefault:"neo4j"`
	Password string `env:"NEO4J_PASSWORD"`
	Database string `env:"NEO4J_DATABASE" envDefault:"neo4j"`

	MaxConnectionPoolSize        int           `env:"NEO4J_MAX_CONNECTION_POOL_SIZE" envDefault:"50"`
	ConnectionAcquisitionTimeout time.Duration `env:"NEO4J_CONNECTION_ACQUISITION_TIMEOUT" envDefault:"30s"`
	MaxTransactionRetryTime      time.Duration `env:"NEO4J_MAX_TRANSACTION_RETRY_TIME" envDefault:"15s"`

	IDStrategy IDStrategy `env:"NEOOGM_ID_STRATEGY" envDefault:"element"`
}

// DefaultConfig returns a Config with the same defaults LoadConfig applies.
// The password is left empty.
func DefaultConfig() Config {
	return Config{
		URI:                          "neo4j://localhost:7687",
		Username:                     "neo4j",
		Database:                     "neo4j",
		MaxConnectionPoolSize:        50,
		ConnectionAcquisitionTimeout: 30 * time.Second,
		MaxTransactionRetryTime:      15 * time.Second,
		IDStrategy:                   ElementIDs,
	}
}

// LoadConfig reads the configuration from the environment.
//
// Returns:
//
//	The parsed Config, or an error if a variable cannot be parsed or the
//	result does not validate.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be used to open a driver.
func (c Config) Validate() error {
	var errs []error
	if c.URI == "" {
		errs = append(errs, errors.New("URI is required"))
	}
	if c.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if c.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	if c.MaxConnectionPoolSize <= 0 {
		errs = append(errs, errors.New("max connection pool size must be positive"))
	}
	if c.ConnectionAcquisitionTimeout <= 0 {
		errs = append(errs, errors.New("connection acquisition timeout must be positive"))
	}
	if c.MaxTransactionRetryTime < 0 {
		errs = append(errs, errors.New("max transaction retry time must not be negative"))
	}
	switch c.IDStrategy {
	case ElementIDs, LegacyIDs:
	default:
		errs = append(errs, fmt.Errorf("unknown id strategy %q", c.IDStrategy))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
