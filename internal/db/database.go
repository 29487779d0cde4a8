package db

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/orm/query"
	"github.com/nickmessing/firemodel/internal/orm/tracking"
)

// Database implements Client over a Store and delivers change events to
// watchers after each committed write
type Database struct {
	store  Store
	logger *zap.Logger

	mu   sync.Mutex
	subs map[Subscription]*subscription
}

type subscription struct {
	id       Subscription
	query    *query.Query
	types    map[EventType]bool
	listener Listener
	value    interface{}
	rows     []query.Row
}

// Option configures a Database
type Option func(*Database)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Database) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Database over store
func New(store Store, opts ...Option) *Database {
	d := &Database{
		store:  store,
		logger: zap.NewNop(),
		subs:   make(map[Subscription]*subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store returns the underlying store
func (d *Database) Store() Store {
	return d.store
}

// Close cancels all watches and closes the store
func (d *Database) Close() error {
	_ = d.UnwatchAll()
	return d.store.Close()
}

// Get returns the value at path
func (d *Database) Get(ctx context.Context, path string) (interface{}, error) {
	return d.store.Read(ctx, CleanPath(path))
}

// Set replaces the value at path
func (d *Database) Set(ctx context.Context, path string, value interface{}) error {
	return d.write(ctx, map[string]interface{}{CleanPath(path): value})
}

// Update sets each child path of path in one atomic write
func (d *Database) Update(ctx context.Context, path string, values map[string]interface{}) error {
	updates := make(map[string]interface{}, len(values))
	base := CleanPath(path)
	for k, v := range values {
		updates[CleanPath(base+"/"+k)] = v
	}
	return d.write(ctx, updates)
}

// Remove deletes the value at path
func (d *Database) Remove(ctx context.Context, path string) error {
	return d.write(ctx, map[string]interface{}{CleanPath(path): nil})
}

// MultiPathSet sets every absolute path in updates in one atomic write
func (d *Database) MultiPathSet(ctx context.Context, updates map[string]interface{}) error {
	cleaned := make(map[string]interface{}, len(updates))
	for p, v := range updates {
		cleaned[CleanPath(p)] = v
	}
	return d.write(ctx, cleaned)
}

func (d *Database) write(ctx context.Context, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	keys := make([]string, 0, len(updates))
	for p := range updates {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	for _, p := range keys {
		if p == "" {
			continue
		}
		if _, ok := updates[""]; ok {
			return fmt.Errorf("%w: %q and %q", ErrOverlappingPaths, "", p)
		}
		for _, a := range Ancestors(p) {
			if _, ok := updates[a]; ok {
				return fmt.Errorf("%w: %q and %q", ErrOverlappingPaths, a, p)
			}
		}
	}

	writes := make([]Write, 0, len(keys))
	for _, p := range keys {
		v, err := Normalize(updates[p])
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if p == "" {
			if _, ok := v.(map[string]interface{}); !ok && v != nil {
				return fmt.Errorf("%w: the root must hold a mapping", ErrInvalidValue)
			}
		}
		writes = append(writes, Write{Path: p, Value: v})
	}

	if err := d.store.Write(ctx, writes); err != nil {
		return err
	}

	d.notify(ctx, keys)
	return nil
}

// RunQuery evaluates q against the stored children of its path
func (d *Database) RunQuery(ctx context.Context, q *query.Query) ([]map[string]interface{}, error) {
	snapshot, err := d.store.Read(ctx, CleanPath(q.Path()))
	if err != nil {
		return nil, err
	}
	rows := query.Evaluate(snapshot, q)
	records := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		records = append(records, asRecord(r))
	}
	return records, nil
}

func asRecord(r query.Row) map[string]interface{} {
	if m, ok := r.Value.(map[string]interface{}); ok {
		record := tracking.DeepCopyMap(m)
		record["id"] = r.Key
		return record
	}
	return map[string]interface{}{"id": r.Key, "value": r.Value}
}

// Watch registers listener for the given event types of q. The current
// state is delivered before Watch returns: a value event, or child_added
// for every current child.
func (d *Database) Watch(ctx context.Context, q *query.Query, types []EventType, listener Listener) (Subscription, error) {
	if listener == nil {
		return "", fmt.Errorf("watch requires a listener")
	}
	if len(types) == 0 {
		return "", fmt.Errorf("watch requires at least one event type")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	sub := &subscription{
		id:       Subscription(id.String()),
		query:    q.Clone().SetPath(CleanPath(q.Path())),
		types:    make(map[EventType]bool, len(types)),
		listener: listener,
	}
	for _, t := range types {
		sub.types[t] = true
	}

	d.mu.Lock()
	if err := d.refresh(ctx, sub); err != nil {
		d.mu.Unlock()
		return "", err
	}
	d.subs[sub.id] = sub
	initial := sub.initialEvents()
	d.mu.Unlock()

	d.deliver(sub, initial)
	return sub.id, nil
}

// Unwatch cancels one subscription
func (d *Database) Unwatch(sub Subscription) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subs[sub]; !ok {
		return fmt.Errorf("%w: %s", ErrNoSubscription, sub)
	}
	delete(d.subs, sub)
	return nil
}

// UnwatchAll cancels every subscription
func (d *Database) UnwatchAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = make(map[Subscription]*subscription)
	return nil
}

// Watching returns the number of active subscriptions
func (d *Database) Watching() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// refresh re-reads the subscription's location and stores the new state.
// Callers hold d.mu.
func (d *Database) refresh(ctx context.Context, sub *subscription) error {
	snapshot, err := d.store.Read(ctx, sub.query.Path())
	if err != nil {
		return err
	}
	sub.rows = query.Evaluate(snapshot, sub.query)
	if constrained(sub.query) {
		value := make(map[string]interface{}, len(sub.rows))
		for _, r := range sub.rows {
			value[r.Key] = r.Value
		}
		if len(value) == 0 {
			sub.value = nil
		} else {
			sub.value = value
		}
	} else {
		sub.value = snapshot
	}
	return nil
}

func constrained(q *query.Query) bool {
	d := q.Descriptor()
	return d.OrderByChild != "" || d.StartAt != nil || d.EndAt != nil ||
		d.LimitToFirst > 0 || d.LimitToLast > 0 || d.WhereOperator != ""
}

func (d *Database) notify(ctx context.Context, written []string) {
	type delivery struct {
		sub    *subscription
		events []Event
	}
	var pending []delivery

	d.mu.Lock()
	for _, sub := range d.subs {
		if !touches(sub.query.Path(), written) {
			continue
		}
		oldValue, oldRows := sub.value, sub.rows
		if err := d.refresh(ctx, sub); err != nil {
			d.logger.Warn("failed to refresh watched location",
				zap.String("path", sub.query.Path()),
				zap.Error(err))
			continue
		}
		if events := sub.diff(oldValue, oldRows); len(events) > 0 {
			pending = append(pending, delivery{sub: sub, events: events})
		}
	}
	d.mu.Unlock()

	for _, p := range pending {
		d.deliver(p.sub, p.events)
	}
}

func touches(watched string, written []string) bool {
	for _, p := range written {
		if Overlaps(watched, p) {
			return true
		}
	}
	return false
}

func (d *Database) deliver(sub *subscription, events []Event) {
	for _, e := range events {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("watch listener panicked",
						zap.String("subscription", string(sub.id)),
						zap.Stringer("event", e.Type),
						zap.Any("panic", r))
				}
			}()
			sub.listener(e)
		}()
	}
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func (s *subscription) initialEvents() []Event {
	var events []Event
	if s.types[EventValue] {
		events = append(events, s.valueEvent())
	}
	if s.types[EventChildAdded] {
		prev := ""
		for _, r := range s.rows {
			events = append(events, s.childEvent(EventChildAdded, r, prev))
			prev = r.Key
		}
	}
	return events
}

func (s *subscription) valueEvent() Event {
	return Event{
		Type:  EventValue,
		Path:  s.query.Path(),
		Key:   lastSegment(s.query.Path()),
		Value: Clone(s.value),
	}
}

func (s *subscription) childEvent(t EventType, r query.Row, prev string) Event {
	return Event{
		Type:    t,
		Path:    CleanPath(s.query.Path() + "/" + r.Key),
		Key:     r.Key,
		Value:   Clone(r.Value),
		PrevKey: prev,
	}
}

// diff compares the previous state with the refreshed one
func (s *subscription) diff(oldValue interface{}, oldRows []query.Row) []Event {
	var events []Event

	if s.types[EventValue] && !tracking.Equal(oldValue, s.value) {
		events = append(events, s.valueEvent())
	}

	oldIndex := make(map[string]query.Row, len(oldRows))
	for _, r := range oldRows {
		oldIndex[r.Key] = r
	}
	newIndex := make(map[string]bool, len(s.rows))
	for _, r := range s.rows {
		newIndex[r.Key] = true
	}

	if s.types[EventChildRemoved] {
		for _, r := range oldRows {
			if !newIndex[r.Key] {
				events = append(events, s.childEvent(EventChildRemoved, r, ""))
			}
		}
	}

	oldOrder := commonOrder(oldRows, newIndex)
	prev := ""
	newPos := 0
	for _, r := range s.rows {
		old, existed := oldIndex[r.Key]
		switch {
		case !existed:
			if s.types[EventChildAdded] {
				events = append(events, s.childEvent(EventChildAdded, r, prev))
			}
		default:
			if !tracking.Equal(old.Value, r.Value) {
				if s.types[EventChildChanged] {
					events = append(events, s.childEvent(EventChildChanged, r, prev))
				}
				if s.types[EventChildMoved] && oldOrder[r.Key] != newPos {
					events = append(events, s.childEvent(EventChildMoved, r, prev))
				}
			}
			newPos++
		}
		prev = r.Key
	}

	return events
}

// commonOrder returns the position of each row among the rows still present
func commonOrder(rows []query.Row, present map[string]bool) map[string]int {
	order := make(map[string]int, len(rows))
	i := 0
	for _, r := range rows {
		if present[r.Key] {
			order[r.Key] = i
			i++
		}
	}
	return order
}
