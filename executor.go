// Package neoogm maps Go structs to Neo4j nodes and relationships.
//
// Entities are described by a schema.Context, usually built from `ogm`
// struct tags. A Template saves and loads whole object graphs through a
// Runner; Repository gives typed access to one entity and PersistenceManager
// hands out repositories and runs graph-wide queries.
package neoogm

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/saulfrancisco-ruizacevedo/go-neoogm"

// Runner defines the interface for a generic query executor.
// It abstracts the execution of a Cypher query, allowing for different implementations
// or mocking in tests.
type Runner interface {
	// Run executes a given Cypher query with parameters and returns a fully-buffered result.
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// Transactor is implemented by runners that can group several statements in
// one write transaction. The Template saves whole object graphs through it
// when available, so a failed save leaves nothing behind.
type Transactor interface {
	ExecuteWrite(ctx context.Context, work func(ctx context.Context, tx Runner) error) error
}

//---

// Neo4jExecutor is a concrete implementation of the Runner interface that uses the
// official Neo4j Go driver. It manages the driver instance and the target database name.
type Neo4jExecutor struct {
	Driver neo4j.DriverWithContext
	DBName string

	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// ExecutorOption configures a Neo4jExecutor.
type ExecutorOption func(*Neo4jExecutor)

// WithExecutorLogger logs every statement at debug level.
func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Neo4jExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records statement counts and durations.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Neo4jExecutor) {
		e.metrics = m
	}
}

// WithTracer replaces the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Neo4jExecutor) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// NewNeo4jExecutor creates and initializes a new Neo4jExecutor.
// It establishes a connection driver with the settings of cfg.
//
// Parameters:
//   - cfg: The connection settings, validated before use.
//   - opts: Optional logger, metrics and tracer.
//
// Returns:
//
//	A pointer to the newly created Neo4jExecutor or an error if the configuration
//	is invalid or the driver creation fails.
func NewNeo4jExecutor(cfg Config, opts ...ExecutorOption) (*Neo4jExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driverConfig := func(config *neo4j.Config) {
		config.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		config.ConnectionAcquisitionTimeout = cfg.ConnectionAcquisitionTimeout
		config.MaxTransactionRetryTime = cfg.MaxTransactionRetryTime
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""), driverConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return NewNeo4jExecutorWithDriver(driver, cfg.Database, opts...), nil
}

// NewNeo4jExecutorWithDriver wraps an existing driver.
func NewNeo4jExecutorWithDriver(driver neo4j.DriverWithContext, dbName string, opts ...ExecutorOption) *Neo4jExecutor {
	e := &Neo4jExecutor{
		Driver: driver,
		DBName: dbName,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify checks the connectivity to the Neo4j database.
//
// Returns:
//
//	An error if the connection cannot be established.
func (e *Neo4jExecutor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

// Close releases the driver and its connections.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

// Run executes a Cypher query using the modern ExecuteQuery function, which handles
// session and transaction management automatically for robust and simple execution.
// This function is suitable for both read and write operations.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - query: The Cypher query string to execute.
//   - params: A map of parameters to be used in the query.
//
// Returns:
//
//	An EagerResult containing all buffered records from the query, or an error if
//	the execution fails.
func (e *Neo4jExecutor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return e.observe(ctx, "auto", query, func(ctx context.Context) (*neo4j.EagerResult, error) {
		return neo4j.ExecuteQuery(
			ctx,
			e.Driver,
			query,
			params,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(e.DBName),
		)
	})
}

// ExecuteWrite runs work in a single managed write transaction. Statements
// run through the Runner handed to work belong to the transaction, which is
// rolled back when work returns an error. The driver may call work again on
// transient failures.
func (e *Neo4jExecutor) ExecuteWrite(ctx context.Context, work func(ctx context.Context, tx Runner) error) error {
	session := e.Driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: e.DBName,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(ctx, &transactionRunner{executor: e, tx: tx})
	})
	return err
}

func (e *Neo4jExecutor) observe(ctx context.Context, mode, query string, run func(context.Context) (*neo4j.EagerResult, error)) (*neo4j.EagerResult, error) {
	ctx, span := e.tracer.Start(ctx, "neoogm.Run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "neo4j"),
			attribute.String("db.name", e.DBName),
			attribute.String("db.statement", query),
		))
	defer span.End()

	started := time.Now()
	result, err := run(ctx)
	records := 0
	if result != nil {
		records = len(result.Records)
	}
	e.metrics.observeStatement(mode, started, records, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Debug("statement failed", zap.String("cypher", query), zap.Error(err))
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	span.SetAttributes(attribute.Int("db.records", records))
	span.SetStatus(codes.Ok, "")
	e.logger.Debug("statement executed",
		zap.String("cypher", query),
		zap.String("mode", mode),
		zap.Int("records", records),
		zap.Duration("took", time.Since(started)))
	return result, nil
}

// transactionRunner runs statements inside a managed transaction.
type transactionRunner struct {
	executor *Neo4jExecutor
	tx       neo4j.ManagedTransaction
}

func (t *transactionRunner) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return t.executor.observe(ctx, "write", query, func(ctx context.Context) (*neo4j.EagerResult, error) {
		result, err := t.tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		keys, err := result.Keys()
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return &neo4j.EagerResult{Keys: keys, Records: records, Summary: summary}, nil
	})
}
