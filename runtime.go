// Package fsmrt is a durable, transactional runtime for finite-state
// machines whose inputs ("signals") are persisted in a relational store and
// delivered asynchronously. Runtime is the public façade: it wires the
// Signal Queue, Delayed Signal Queue, Apply Engine, Drain Scheduler, and
// Query API behind a functional-option constructor, mirroring the
// teacher's agent.Option / agent.New construction style.
package fsmrt

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalforge/fsmrt/internal/apply"
	"github.com/signalforge/fsmrt/internal/behavior"
	"github.com/signalforge/fsmrt/internal/catalog"
	"github.com/signalforge/fsmrt/internal/clock"
	"github.com/signalforge/fsmrt/internal/codec"
	"github.com/signalforge/fsmrt/internal/delayedqueue"
	"github.com/signalforge/fsmrt/internal/drain"
	"github.com/signalforge/fsmrt/internal/fsmerr"
	"github.com/signalforge/fsmrt/internal/query"
	"github.com/signalforge/fsmrt/internal/signalqueue"
	"github.com/signalforge/fsmrt/internal/signalstore"
	"github.com/signalforge/fsmrt/internal/store"
	"github.com/signalforge/fsmrt/internal/txn"
)

// Runtime is a running FSM signal runtime. Construct one with New; it is
// safe for concurrent use by any number of publishers, per spec.md §5's
// multi-producer, single-consumer model.
type Runtime struct {
	*query.API

	behaviors behavior.Factory
	eventCdc  codec.Serializer
	sql       catalog.Statements
	conn      txn.Factory
	queryConn txn.QueryFactory

	signalQueue  *signalqueue.Queue
	delayedQueue *delayedqueue.Queue
	engine       *apply.Engine
	scheduler    *drain.Scheduler

	log zerolog.Logger
}

type config struct {
	executor         drain.Executor
	clock            clock.Clock
	entitySerializer codec.Serializer
	eventSerializer  codec.Serializer
	behaviors        behavior.Factory
	sql              *catalog.Statements
	conn             txn.Factory
	queryConn        txn.QueryFactory
	storeSignals     *bool
	errorHandler     drain.ErrorHandler
	retryInterval    time.Duration
	properties       apply.PropertiesFactory
	metrics          drain.Metrics
	logger           *zerolog.Logger
}

// Option configures a Runtime at construction time.
type Option func(*config)

// WithExecutor overrides the scheduled executor hosting the drain worker
// and delayed timers. Default: drain.GoExecutor{}.
func WithExecutor(e drain.Executor) Option { return func(c *config) { c.executor = e } }

// WithClock overrides the wall-clock source. Default: clock.System{}.
func WithClock(clk clock.Clock) Option { return func(c *config) { c.clock = clk } }

// WithEntitySerializer overrides the entity codec. Default: codec.JSON with
// no type registry (decodes to map[string]any).
func WithEntitySerializer(s codec.Serializer) Option {
	return func(c *config) { c.entitySerializer = s }
}

// WithEventSerializer overrides the event codec. Default: codec.JSON with no
// type registry.
func WithEventSerializer(s codec.Serializer) Option {
	return func(c *config) { c.eventSerializer = s }
}

// WithBehaviorFactory sets the required class->Behavior resolver.
func WithBehaviorFactory(f behavior.Factory) Option { return func(c *config) { c.behaviors = f } }

// WithSQL overrides the SQL catalog. Default: catalog.Default() (the
// embedded engine).
func WithSQL(stmts catalog.Statements) Option { return func(c *config) { c.sql = &stmts } }

// WithConnectionFactory sets the required pair of connection factories: conn
// opens one Tx per apply cycle or schema statement, queryConn opens one
// Queryer per read. txn.SQLiteFactory/SQLiteQueryFactory and
// txn.PgxFactory/PgxQueryFactory supply matching pairs for the two built-in
// catalogs.
func WithConnectionFactory(conn txn.Factory, queryConn txn.QueryFactory) Option {
	return func(c *config) { c.conn = conn; c.queryConn = queryConn }
}

// WithStoreSignals toggles the optional signal-store audit log. Default:
// true.
func WithStoreSignals(enabled bool) Option { return func(c *config) { c.storeSignals = &enabled } }

// WithErrorHandler overrides the apply-failure callback. Default: log at
// Warn and continue (the drain loop always retries regardless of this
// callback; see internal/drain).
func WithErrorHandler(h drain.ErrorHandler) Option { return func(c *config) { c.errorHandler = h } }

// WithRetryInterval overrides the delay before retrying a failed apply.
// Default: 30 seconds.
func WithRetryInterval(d time.Duration) Option { return func(c *config) { c.retryInterval = d } }

// WithPropertiesFactory sets the projection from an entity value to its
// secondary-index property rows. Default: always the empty map.
func WithPropertiesFactory(f apply.PropertiesFactory) Option {
	return func(c *config) { c.properties = f }
}

// WithMetrics attaches a drain.Metrics implementation (e.g. the
// prometheus-backed one in cmd/demo). Default: nil (disabled).
func WithMetrics(m drain.Metrics) Option { return func(c *config) { c.metrics = m } }

// WithLogger overrides the structured logger passed to every internal
// component. Default: zerolog.Nop().
func WithLogger(l zerolog.Logger) Option { return func(c *config) { c.logger = &l } }

// New builds a Runtime from opts. WithBehaviorFactory and
// WithConnectionFactory are required; every other option has the default
// named in spec.md §6.
func New(opts ...Option) (*Runtime, error) {
	cfg := config{
		executor:         drain.GoExecutor{},
		clock:            clock.System{},
		entitySerializer: codec.NewJSON(nil),
		eventSerializer:  codec.NewJSON(nil),
		retryInterval:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.behaviors == nil {
		return nil, &fsmerr.ConfigurationError{Field: "BehaviorFactory"}
	}
	if cfg.conn == nil || cfg.queryConn == nil {
		return nil, &fsmerr.ConfigurationError{Field: "ConnectionFactory"}
	}

	sql := catalog.Default()
	if cfg.sql != nil {
		sql = *cfg.sql
	}
	storeSignals := true
	if cfg.storeSignals != nil {
		storeSignals = *cfg.storeSignals
	}
	logger := zerolog.Nop()
	if cfg.logger != nil {
		logger = *cfg.logger
	}

	entityStore := store.New(sql)
	sq := signalqueue.New(sql)
	dq := delayedqueue.New(sql)
	ss := signalstore.New(sql)

	rt := &Runtime{
		behaviors:    cfg.behaviors,
		eventCdc:     cfg.eventSerializer,
		sql:          sql,
		conn:         cfg.conn,
		queryConn:    cfg.queryConn,
		signalQueue:  sq,
		delayedQueue: dq,
		log:          logger,
	}

	engine := &apply.Engine{
		Conn:         cfg.conn,
		Store:        entityStore,
		SignalQueue:  sq,
		DelayedQueue: dq,
		SignalStore:  ss,
		Behaviors:    cfg.behaviors,
		EntityCodec:  cfg.entitySerializer,
		EventCodec:   cfg.eventSerializer,
		Properties:   cfg.properties,
		StoreSignals: storeSignals,
		Log:          logger,

		// PersistenceContext is the Runtime itself: Behaviors that need to
		// reach back into the runtime (spec.md §9's "cyclic structure"
		// design note) retrieve it via behavior.ContextFrom and type-assert
		// to whatever narrow interface they define, e.g. an interface with
		// just a Signal method — they are never handed the concrete
		// Runtime type by this package.
	}
	rt.engine = engine
	engine.PersistenceContext = rt

	errorHandler := cfg.errorHandler
	if errorHandler == nil {
		errorHandler = func(sig apply.Signal, err error) {
			logger.Warn().Err(err).Str("signal", sig.String()).Msg("apply failed, will retry")
		}
	}

	rt.scheduler = &drain.Scheduler{
		Apply:         engine.Apply,
		SignalQueue:   sq,
		DelayedQueue:  dq,
		Query:         cfg.queryConn,
		Executor:      cfg.executor,
		RetryInterval: cfg.retryInterval,
		OnError:       errorHandler,
		Metrics:       cfg.metrics,
		Clock:         cfg.clock,
		Log:           logger,
	}

	rt.API = &query.API{
		Store:       entityStore,
		Behaviors:   cfg.behaviors,
		EntityCodec: cfg.entitySerializer,
		Query:       cfg.queryConn,
	}

	return rt, nil
}

// Signal publishes a non-delayed signal to (class, id) and offers it to the
// drain scheduler. Only the non-delayed variant is reachable from this
// entrypoint (spec.md §6): delayed publication originates solely from FSM
// emission inside an apply cycle.
func (r *Runtime) Signal(ctx context.Context, class, id string, event behavior.Event) error {
	var eventBytes []byte
	if event.Class != behavior.CreateClass {
		b, err := r.eventCdc.Serialize(event.Value)
		if err != nil {
			return err
		}
		eventBytes = b
	}

	tx, err := r.conn(ctx)
	if err != nil {
		return &fsmerr.StorageError{Op: "open signal transaction", Err: err}
	}
	seq, err := r.signalQueue.Enqueue(ctx, tx, class, id, event.Class, eventBytes)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return &fsmerr.StorageError{Op: "commit signal publish", Err: err}
	}

	r.scheduler.Offer(apply.Signal{
		Seq: seq, Delayed: false, Class: class, ID: id,
		EventClass: event.Class, EventBytes: eventBytes,
	})
	return nil
}

// Initialize recovers delayed signals and (per the resolved "signal-queue
// replay on startup" design note) every still-pending non-delayed signal,
// scheduling each for drain.
func (r *Runtime) Initialize(ctx context.Context) error {
	return r.scheduler.Initialize(ctx)
}

// Create bootstraps the persistence schema using the configured catalog's
// DDL.
func (r *Runtime) Create(ctx context.Context) error {
	return r.CreateSchema(ctx, r.sql.Schema)
}

// CreateSchema bootstraps the persistence schema from a caller-supplied
// ";"-delimited sequence of DDL statements, idempotent when every statement
// is itself idempotent (e.g. "CREATE TABLE IF NOT EXISTS").
func (r *Runtime) CreateSchema(ctx context.Context, sql string) error {
	tx, err := r.conn(ctx)
	if err != nil {
		return &fsmerr.StorageError{Op: "open schema transaction", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, stmt := range strings.Split(sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := tx.ExecContext(ctx, stmt); err != nil {
			return &fsmerr.SchemaError{Stmt: stmt, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &fsmerr.StorageError{Op: "commit schema bootstrap", Err: err}
	}
	committed = true
	r.log.Info().Msg("schema bootstrap complete")
	return nil
}
