// Package session holds the state shared by records, lists and watchers:
// the model registry, the database client, the event dispatcher and the
// watcher bookkeeping. Pass a Session explicitly instead of relying on
// process-wide defaults.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/schema"
	"github.com/nickmessing/firemodel/internal/orm/watch/watchers"
)

// DefaultAuditLogs is the database path audit entries are written under
const DefaultAuditLogs = "auditing"

// Session is the context object of the model layer
type Session struct {
	registry   *schema.Registry
	client     db.Client
	dispatcher *dispatch.Dispatcher
	dispatch   dispatch.DispatchFunc
	watchers   *watchers.Registry
	logger     *zap.Logger
	clock      func() int64
	keys       func() string
	auditLogs  string
}

// Option configures a Session
type Option func(*Session)

// WithRegistry sets the model registry
func WithRegistry(r *schema.Registry) Option {
	return func(s *Session) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithDB binds a database client
func WithDB(client db.Client) Option {
	return func(s *Session) {
		s.client = client
	}
}

// WithDispatcher routes events through d
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(s *Session) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithDispatch routes events to fn instead of the dispatcher
func WithDispatch(fn dispatch.DispatchFunc) Option {
	return func(s *Session) {
		s.dispatch = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the source of epoch millisecond timestamps
func WithClock(clock func() int64) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithKeyGenerator sets the generator of record ids and push keys
func WithKeyGenerator(keys func() string) Option {
	return func(s *Session) {
		if keys != nil {
			s.keys = keys
		}
	}
}

// WithAuditLogs sets the database path audit entries are written under
func WithAuditLogs(path string) Option {
	return func(s *Session) {
		if path != "" {
			s.auditLogs = path
		}
	}
}

// WithWatchers shares a watcher registry between sessions
func WithWatchers(r *watchers.Registry) Option {
	return func(s *Session) {
		if r != nil {
			s.watchers = r
		}
	}
}

// New creates a session. Without options it has an empty registry, no
// database, a synchronous dispatcher and a no-op logger.
func New(opts ...Option) *Session {
	s := &Session{
		registry:  schema.NewRegistry(),
		watchers:  watchers.NewRegistry(),
		logger:    zap.NewNop(),
		clock:     func() int64 { return time.Now().UnixMilli() },
		keys:      NewKey,
		auditLogs: DefaultAuditLogs,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = dispatch.NewDispatcher(nil, s.logger)
	}
	return s
}

// NewKey returns a time-ordered unique key
func NewKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Using returns a session that shares everything with s except the
// database client
func (s *Session) Using(client db.Client) *Session {
	clone := *s
	clone.client = client
	return &clone
}

// Registry returns the model registry
func (s *Session) Registry() *schema.Registry { return s.registry }

// DB returns the bound database client, or nil
func (s *Session) DB() db.Client { return s.client }

// RequireDB returns the bound database client or ErrNoDatabase
func (s *Session) RequireDB() (db.Client, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: bind a database client to the session first", ormerr.ErrNoDatabase)
	}
	return s.client, nil
}

// Dispatcher returns the event dispatcher
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// DispatchFunc returns the function events are delivered to
func (s *Session) DispatchFunc() dispatch.DispatchFunc {
	if s.dispatch != nil {
		return s.dispatch
	}
	return s.dispatcher.Func()
}

// Dispatch delivers e
func (s *Session) Dispatch(e dispatch.Event) {
	s.DispatchFunc()(e)
}

// Watchers returns the watcher registry
func (s *Session) Watchers() *watchers.Registry { return s.watchers }

// Logger returns the session logger
func (s *Session) Logger() *zap.Logger { return s.logger }

// Now returns the current time in epoch milliseconds
func (s *Session) Now() int64 { return s.clock() }

// NewKey returns a fresh record id or push key
func (s *Session) NewKey() string { return s.keys() }

// AuditLogs returns the database path audit entries are written under
func (s *Session) AuditLogs() string { return s.auditLogs }

// Resolve returns the effective schema of a registered model
func (s *Session) Resolve(model string) (*schema.EffectiveSchema, error) {
	return s.registry.Resolve(model)
}

// Define builds and registers a model declaration
func (s *Session) Define(b *schema.ModelBuilder) (*schema.EffectiveSchema, error) {
	def, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := s.registry.Register(def); err != nil {
		return nil, err
	}
	return s.registry.Resolve(def.Name)
}
