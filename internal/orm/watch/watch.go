// Package watch subscribes to database changes of a record or of a model's
// collection and turns them into model events
package watch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/paths"
	"github.com/nickmessing/firemodel/internal/orm/query"
	"github.com/nickmessing/firemodel/internal/orm/schema"
	"github.com/nickmessing/firemodel/internal/orm/session"
	"github.com/nickmessing/firemodel/internal/orm/watch/watchers"
)

// Registry is the watcher bookkeeping held by a session
type Registry = watchers.Registry

// Entry is the registration of a started watcher
type Entry = watchers.Entry

// Classification selects which database events a watcher listens to
type Classification int

const (
	// Value watches a single location as a whole
	Value Classification = iota
	// Child watches the children of a collection
	Child
)

// String returns the string representation of the classification
func (c Classification) String() string {
	switch c {
	case Value:
		return "value"
	case Child:
		return "child"
	default:
		return "unknown"
	}
}

// EventTypes returns the database events the classification subscribes to
func (c Classification) EventTypes() []db.EventType {
	if c == Child {
		return db.ChildEvents()
	}
	return []db.EventType{db.EventValue}
}

// Watch builds a watcher. Refinements record their first error, which is
// reported by Start.
type Watch struct {
	sess           *session.Session
	schema         *schema.EffectiveSchema
	classification Classification
	query          *query.Query
	localPath      string
	dispatch       dispatch.DispatchFunc
	client         db.Client
	err            error
}

// Record watches the record of model stored under id
func Record(sess *session.Session, model, id string) (*Watch, error) {
	s, err := sess.Resolve(model)
	if err != nil {
		return nil, err
	}
	dbPath, err := paths.DBPath(s, id)
	if err != nil {
		return nil, err
	}
	localPath, err := paths.LocalPath(s, id)
	if err != nil {
		return nil, err
	}
	return &Watch{
		sess:           sess,
		schema:         s,
		classification: Value,
		query:          query.New(dbPath),
		localPath:      paths.DotNotation(localPath),
	}, nil
}

// List watches the collection of model
func List(sess *session.Session, model string) (*Watch, error) {
	s, err := sess.Resolve(model)
	if err != nil {
		return nil, err
	}
	return &Watch{
		sess:           sess,
		schema:         s,
		classification: Child,
		query:          query.New(paths.ListDBPath(s)),
		localPath:      paths.ListLocalPath(s),
	}, nil
}

func (w *Watch) refine(name string, fn func(q *query.Query)) *Watch {
	if w.err != nil {
		return w
	}
	if w.classification != Child {
		w.err = fmt.Errorf("%w: %s only applies to list watchers", ormerr.ErrNotAllowed, name)
		return w
	}
	fn(w.query)
	return w
}

// refineLimit is refine for refinements taking a record count
func (w *Watch) refineLimit(name string, n int, fn func(q *query.Query)) *Watch {
	if w.err == nil && n <= 0 {
		w.err = fmt.Errorf("%w: %s limit must be positive, got %d", ormerr.ErrNotAllowed, name, n)
		return w
	}
	return w.refine(name, fn)
}

func firstLimit(q *query.Query, limit []int) {
	if len(limit) > 0 && limit[0] > 0 {
		q.LimitToFirst(limit[0])
	}
}

// Since watches records updated at or after when
func (w *Watch) Since(when int64, limit ...int) *Watch {
	return w.refine("since", func(q *query.Query) {
		q.OrderByChild(schema.FieldLastUpdated).StartAt(when)
		firstLimit(q, limit)
	})
}

// DormantSince watches records not updated after when
func (w *Watch) DormantSince(when int64, limit ...int) *Watch {
	return w.refine("dormantSince", func(q *query.Query) {
		q.OrderByChild(schema.FieldLastUpdated).EndAt(when)
		firstLimit(q, limit)
	})
}

// After watches records created at or after when
func (w *Watch) After(when int64, limit ...int) *Watch {
	return w.refine("after", func(q *query.Query) {
		q.OrderByChild(schema.FieldCreatedAt).StartAt(when)
		firstLimit(q, limit)
	})
}

// Before watches records created at or before when
func (w *Watch) Before(when int64, limit ...int) *Watch {
	return w.refine("before", func(q *query.Query) {
		q.OrderByChild(schema.FieldCreatedAt).EndAt(when)
		firstLimit(q, limit)
	})
}

// First watches the n oldest records, optionally starting at a createdAt value
func (w *Watch) First(n int, startAt ...interface{}) *Watch {
	return w.refineLimit("first", n, func(q *query.Query) {
		q.OrderByChild(schema.FieldCreatedAt).LimitToFirst(n)
		if len(startAt) > 0 {
			q.StartAt(startAt[0])
		}
	})
}

// Last watches the n newest records, optionally ending at a createdAt value
func (w *Watch) Last(n int, endAt ...interface{}) *Watch {
	return w.refineLimit("last", n, func(q *query.Query) {
		q.OrderByChild(schema.FieldCreatedAt).LimitToLast(n)
		if len(endAt) > 0 {
			q.EndAt(endAt[0])
		}
	})
}

// Recent watches n records by lastUpdated, optionally starting at a value
func (w *Watch) Recent(n int, startAt ...interface{}) *Watch {
	return w.refineLimit("recent", n, func(q *query.Query) {
		q.OrderByChild(schema.FieldLastUpdated).LimitToFirst(n)
		if len(startAt) > 0 {
			q.StartAt(startAt[0])
		}
	})
}

// Inactive watches the n records at the end of the lastUpdated ordering,
// optionally ending at a value
func (w *Watch) Inactive(n int, endAt ...interface{}) *Watch {
	return w.refineLimit("inactive", n, func(q *query.Query) {
		q.OrderByChild(schema.FieldLastUpdated).LimitToLast(n)
		if len(endAt) > 0 {
			q.EndAt(endAt[0])
		}
	})
}

// All watches the whole collection, or only its last limit children
func (w *Watch) All(limit ...int) *Watch {
	return w.refine("all", func(q *query.Query) {
		if len(limit) > 0 && limit[0] > 0 {
			q.LimitToLast(limit[0])
		}
	})
}

// Where watches records whose prop matches value, as in list.Where
func (w *Watch) Where(prop string, value interface{}) *Watch {
	return w.refine("where", func(q *query.Query) {
		op, v := query.ParseWhere(value)
		q.OrderByChild(prop).Where(op, v)
	})
}

// FromQuery replaces the watcher's query. The path stays the collection path.
func (w *Watch) FromQuery(q *query.Query) *Watch {
	return w.refine("fromQuery", func(current *query.Query) {
		*current = *q.Clone().SetPath(current.Path())
	})
}

// Dispatch delivers this watcher's events to fn instead of the session
func (w *Watch) Dispatch(fn dispatch.DispatchFunc) *Watch {
	w.dispatch = fn
	return w
}

// Using attaches the watcher to client instead of the session database
func (w *Watch) Using(client db.Client) *Watch {
	w.client = client
	return w
}

// Classification returns the watcher's classification
func (w *Watch) Classification() Classification { return w.classification }

// Query returns a copy of the watcher's query
func (w *Watch) Query() *query.Query { return w.query.Clone() }

// DBPath returns the watched database path
func (w *Watch) DBPath() string { return w.query.Path() }

// LocalPath returns the dotted local path events are addressed to
func (w *Watch) LocalPath() string { return w.localPath }

// Err returns the first refinement error
func (w *Watch) Err() error { return w.err }

// Hash identifies the watcher: watchers with the same query and
// classification share a hash
func (w *Watch) Hash() string {
	return Hash(w.query, w.classification)
}

// Hash returns "w" followed by a hash of the query and classification
func Hash(q *query.Query, c Classification) string {
	return "w" + strconv.FormatUint(xxhash.Sum64String(q.Identity()+"|"+c.String()), 10)
}

// Start attaches the watcher to the database and registers it. Starting
// a watcher whose hash is already registered returns the hash without
// subscribing again.
func (w *Watch) Start(ctx context.Context) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	client := w.client
	if client == nil {
		client = w.sess.DB()
	}
	if client == nil {
		return "", fmt.Errorf("%w: can not watch %s without a database", ormerr.ErrNoDatabase, w.DBPath())
	}

	hash := w.Hash()
	registry := w.sess.Watchers()
	if registry.Has(hash) {
		w.sess.Logger().Debug("already watching", zap.String("hash", hash), zap.String("path", w.DBPath()))
		return hash, nil
	}

	fn := w.dispatch
	if fn == nil {
		fn = w.sess.DispatchFunc()
	}
	listener := Transformer(Context{
		Hash:       hash,
		ModelName:  w.schema.ModelName(),
		PluralName: w.schema.Plural(),
		DBPath:     w.DBPath(),
		LocalPath:  w.localPath,
	})(fn)

	sub, err := client.Watch(ctx, w.query.Clone(), w.classification.EventTypes(), listener)
	if err != nil {
		return "", fmt.Errorf("failed to watch %s: %w", w.DBPath(), err)
	}

	added := registry.Add(watchers.Entry{
		Hash:           hash,
		Classification: w.classification.String(),
		Query:          w.query.Descriptor(),
		Dispatch:       fn,
		DBPath:         w.DBPath(),
		LocalPath:      w.localPath,
		CreatedAt:      w.sess.Now(),
		Subscription:   sub,
		Client:         client,
	})
	if !added {
		// another goroutine registered the same watcher first
		if err := client.Unwatch(sub); err != nil && !errors.Is(err, db.ErrNoSubscription) {
			return "", fmt.Errorf("failed to release duplicate watcher %s: %w", hash, err)
		}
		return hash, nil
	}

	w.sess.Logger().Info("watcher started",
		zap.String("hash", hash),
		zap.String("path", w.DBPath()),
		zap.Stringer("classification", w.classification))
	return hash, nil
}

// String describes the watcher
func (w *Watch) String() string {
	return fmt.Sprintf("Watching path %q for %q event(s) [ hashcode: %s ]", w.DBPath(), w.classification, w.Hash())
}

// Lookup returns the registration of a started watcher
func Lookup(sess *session.Session, hash string) (Entry, error) {
	return sess.Watchers().Lookup(hash)
}

// Stop detaches the watcher registered under hash
func Stop(sess *session.Session, hash string) error {
	entry, err := sess.Watchers().Lookup(hash)
	client := sess.DB()
	if err == nil && entry.Client != nil {
		client = entry.Client
	}
	if client == nil {
		return fmt.Errorf("%w: can not stop a watcher without a database", ormerr.ErrNoDatabase)
	}
	if err != nil {
		return fmt.Errorf("%w: %q is not an active watcher", ormerr.ErrForbidden, hash)
	}

	if err := client.Unwatch(entry.Subscription); err != nil && !errors.Is(err, db.ErrNoSubscription) {
		return fmt.Errorf("failed to stop watcher %s: %w", hash, err)
	}
	sess.Watchers().Remove(hash)
	sess.Logger().Info("watcher stopped", zap.String("hash", hash), zap.String("path", entry.DBPath))
	return nil
}

// StopAll detaches every registered watcher. Watchers that fail to stop
// stay registered and their errors are returned together.
func StopAll(sess *session.Session) error {
	var errs []error
	for _, entry := range sess.Watchers().Entries() {
		if err := Stop(sess, entry.Hash); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset forgets every watcher without detaching it from the database
func Reset(sess *session.Session) {
	sess.Watchers().Reset()
}

// Count returns the number of registered watchers
func Count(sess *session.Session) int {
	return sess.Watchers().Count()
}

// Hashes returns the sorted hashes of the registered watchers
func Hashes(sess *session.Session) []string {
	return sess.Watchers().Hashes()
}
