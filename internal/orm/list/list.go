// Package list is the collection facade of the model layer. Finders run a
// query against a model's collection; filters and finders on a List work on
// the loaded data and never touch the database.
package list

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/audit"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/paths"
	"github.com/nickmessing/firemodel/internal/orm/query"
	"github.com/nickmessing/firemodel/internal/orm/record"
	"github.com/nickmessing/firemodel/internal/orm/schema"
	"github.com/nickmessing/firemodel/internal/orm/session"
	"github.com/nickmessing/firemodel/internal/orm/tracking"
)

// List is an ordered set of records of one model and the query that
// produced it
type List struct {
	sess   *session.Session
	schema *schema.EffectiveSchema
	query  *query.Query
	data   []map[string]interface{}
}

// New creates an empty list of model
func New(sess *session.Session, model string) (*List, error) {
	s, err := sess.Resolve(model)
	if err != nil {
		return nil, err
	}
	return &List{
		sess:   sess,
		schema: s,
		query:  query.New(paths.ListDBPath(s)),
		data:   []map[string]interface{}{},
	}, nil
}

// FromQuery runs q against the model's collection and dispatches
// RECORD_LIST with the result. The query path is always the collection
// path; q itself is not modified.
func FromQuery(ctx context.Context, sess *session.Session, model string, q *query.Query) (*List, error) {
	l, err := New(sess, model)
	if err != nil {
		return nil, err
	}
	client, err := sess.RequireDB()
	if err != nil {
		return nil, err
	}

	l.query = q.Clone().SetPath(l.DBPath())
	records, err := client.RunQuery(ctx, l.query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", l.DBPath(), err)
	}
	l.data = records

	d := l.query.Descriptor()
	sess.Dispatch(dispatch.Event{
		Type:       dispatch.RecordList,
		ModelName:  l.schema.ModelName(),
		PluralName: l.schema.Plural(),
		DBPath:     l.DBPath(),
		LocalPath:  l.LocalPath(),
		Records:    l.Data(),
		Query:      &d,
	})
	return l, nil
}

// All returns every record ordered by lastUpdated
func All(ctx context.Context, sess *session.Session, model string) (*List, error) {
	return FromQuery(ctx, sess, model, query.New("").OrderByChild(schema.FieldLastUpdated))
}

// First returns n records by createdAt
func First(ctx context.Context, sess *session.Session, model string, n int) (*List, error) {
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	return FromQuery(ctx, sess, model, query.New("").OrderByChild(schema.FieldCreatedAt).LimitToLast(n))
}

// Last returns n records by createdAt
func Last(ctx context.Context, sess *session.Session, model string, n int) (*List, error) {
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	return FromQuery(ctx, sess, model, query.New("").OrderByChild(schema.FieldCreatedAt).LimitToFirst(n))
}

// Recent returns n records by lastUpdated
func Recent(ctx context.Context, sess *session.Session, model string, n int) (*List, error) {
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	return FromQuery(ctx, sess, model, query.New("").OrderByChild(schema.FieldLastUpdated).LimitToFirst(n))
}

// Inactive returns the n records updated longest ago by lastUpdated
func Inactive(ctx context.Context, sess *session.Session, model string, n int) (*List, error) {
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	return FromQuery(ctx, sess, model, query.New("").OrderByChild(schema.FieldLastUpdated).LimitToLast(n))
}

// Since returns the records updated at or after since, an epoch
// millisecond timestamp
func Since(ctx context.Context, sess *session.Session, model string, since interface{}) (*List, error) {
	if _, ok := query.ToFloat(since); !ok {
		return nil, fmt.Errorf("%w: since must be a numeric epoch timestamp, got %T", ormerr.ErrNotAllowed, since)
	}
	return FromQuery(ctx, sess, model, query.New("").OrderByChild(schema.FieldLastUpdated).StartAt(since))
}

// Where returns the records whose prop matches value. Pass a
// query.Comparison or an [operator, value] pair to compare with > or <.
func Where(ctx context.Context, sess *session.Session, model, prop string, value interface{}) (*List, error) {
	if prop == "" {
		return nil, fmt.Errorf("%w: where needs a property", ormerr.ErrNotAllowed)
	}
	op, v := query.ParseWhere(value)
	return FromQuery(ctx, sess, model, query.New("").OrderByChild(prop).Where(op, v))
}

// Set replaces the whole collection of model with payload, keyed by id,
// stamping createdAt and lastUpdated on every record
func Set(ctx context.Context, sess *session.Session, model string, payload map[string]map[string]interface{}) (*List, error) {
	s, err := sess.Resolve(model)
	if err != nil {
		return nil, err
	}
	client, err := sess.RequireDB()
	if err != nil {
		return nil, err
	}

	now := sess.Now()
	stamped := make(map[string]interface{}, len(payload))
	for id, item := range payload {
		c := tracking.DeepCopyMap(item)
		c[schema.FieldCreatedAt] = now
		c[schema.FieldLastUpdated] = now
		stamped[id] = c
	}

	listPath := paths.ListDBPath(s)
	if s.Audit() {
		w := db.NewMultiPathWrite(client, "").Add(listPath, stamped)
		writer := audit.NewWriter(sess)
		for id := range payload {
			writer.Stage(w, s, id, audit.Added, nil)
		}
		err = w.Execute(ctx)
	} else if err = client.Set(ctx, listPath, stamped); err != nil {
		err = fmt.Errorf("failed to set %s: %w", listPath, err)
	}
	if err != nil {
		return nil, err
	}
	sess.Logger().Debug("collection replaced",
		zap.String("model", s.ModelName()),
		zap.Int("records", len(payload)))

	return All(ctx, sess, model)
}

func checkLimit(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ormerr.ErrNotAllowed, n)
	}
	return nil
}

// derive creates a list sharing l's model and query but holding copies of items
func (l *List) derive(items []map[string]interface{}) *List {
	data := make([]map[string]interface{}, len(items))
	for i, item := range items {
		data[i] = tracking.DeepCopyMap(item)
	}
	return &List{sess: l.sess, schema: l.schema, query: l.query.Clone(), data: data}
}

// Len returns the number of records
func (l *List) Len() int { return len(l.data) }

// Data returns a copy of the records
func (l *List) Data() []map[string]interface{} {
	out := make([]map[string]interface{}, len(l.data))
	for i, item := range l.data {
		out[i] = tracking.DeepCopyMap(item)
	}
	return out
}

// Query returns a copy of the query that produced the list
func (l *List) Query() *query.Query { return l.query.Clone() }

// Schema returns the effective schema of the list's model
func (l *List) Schema() *schema.EffectiveSchema { return l.schema }

// ModelName returns the lowercase model name
func (l *List) ModelName() string { return l.schema.ModelName() }

// PluralName returns the plural model name
func (l *List) PluralName() string { return l.schema.Plural() }

// DBPath returns the collection path
func (l *List) DBPath() string { return paths.ListDBPath(l.schema) }

// LocalPath returns the dotted local path of the collection
func (l *List) LocalPath() string { return paths.ListLocalPath(l.schema) }

// SinceLocalPath returns the dotted local path of the last since timestamp
func (l *List) SinceLocalPath() string { return paths.SinceLocalPath(l.schema) }

// Filter returns a new list of the records matching fn
func (l *List) Filter(fn func(map[string]interface{}) bool) *List {
	var matched []map[string]interface{}
	for _, item := range l.data {
		if fn(tracking.DeepCopyMap(item)) {
			matched = append(matched, item)
		}
	}
	return l.derive(matched)
}

// FilterWhere returns a new list of the records whose prop equals value
func (l *List) FilterWhere(prop string, value interface{}) *List {
	return l.Filter(func(item map[string]interface{}) bool {
		return tracking.Equal(query.ChildValue(item, prop), value)
	})
}

// FilterContains returns a new list of the records whose prop mapping
// contains the key value
func (l *List) FilterContains(prop string, value interface{}) *List {
	key := fmt.Sprint(value)
	return l.Filter(func(item map[string]interface{}) bool {
		m, ok := query.ChildValue(item, prop).(map[string]interface{})
		if !ok {
			return false
		}
		_, found := m[key]
		return found
	})
}

// Find returns the first record matching fn
func (l *List) Find(fn func(map[string]interface{}) bool) (*record.Record, error) {
	for _, item := range l.data {
		if fn(tracking.DeepCopyMap(item)) {
			return record.FromPayload(l.sess, l.schema, tracking.DeepCopyMap(item))
		}
	}
	return nil, fmt.Errorf("%w: no %s in the list matched", ormerr.ErrNotFound, l.schema.ModelName())
}

// FindOrDefault is Find returning def instead of failing
func (l *List) FindOrDefault(fn func(map[string]interface{}) bool, def *record.Record) *record.Record {
	r, err := l.Find(fn)
	if err != nil {
		return def
	}
	return r
}

// FindWhere returns the first record whose prop matches value. Properties
// and belongsTo relationships are compared for equality; anything else is
// treated as a mapping that must contain the key value.
func (l *List) FindWhere(prop string, value interface{}) (*record.Record, error) {
	var matched *List
	if l.isScalar(prop) {
		matched = l.FilterWhere(prop, value)
	} else {
		matched = l.FilterContains(prop, value)
	}
	if matched.Len() == 0 {
		return nil, fmt.Errorf("%w: no %s where %s is %v among %d records", ormerr.ErrNotFound, l.schema.ModelName(), prop, value, l.Len())
	}
	return record.FromPayload(l.sess, l.schema, matched.data[0])
}

// FindWhereOrDefault is FindWhere returning def instead of failing
func (l *List) FindWhereOrDefault(prop string, value interface{}, def *record.Record) *record.Record {
	r, err := l.FindWhere(prop, value)
	if err != nil {
		return def
	}
	return r
}

func (l *List) isScalar(prop string) bool {
	if l.schema.IsProperty(prop) {
		return true
	}
	rel, err := l.schema.Relationship(prop)
	return err == nil && rel.IsToOne()
}

// FindByID returns the record with id
func (l *List) FindByID(id string) (*record.Record, error) {
	item, err := l.GetData(id)
	if err != nil {
		return nil, err
	}
	return record.FromPayload(l.sess, l.schema, item)
}

// FindByIDOrDefault is FindByID returning def instead of failing
func (l *List) FindByIDOrDefault(id string, def *record.Record) *record.Record {
	r, err := l.FindByID(id)
	if err != nil {
		return def
	}
	return r
}

// GetData returns a copy of the payload of the record with id
func (l *List) GetData(id string) (map[string]interface{}, error) {
	if i := l.indexOf(id); i >= 0 {
		return tracking.DeepCopyMap(l.data[i]), nil
	}
	return nil, fmt.Errorf("%w: no %s with id %q in the list", ormerr.ErrNotFound, l.schema.ModelName(), id)
}

// GetDataOrDefault is GetData returning def instead of failing
func (l *List) GetDataOrDefault(id string, def map[string]interface{}) map[string]interface{} {
	data, err := l.GetData(id)
	if err != nil {
		return def
	}
	return data
}

func (l *List) indexOf(id string) int {
	for i, item := range l.data {
		if itemID, _ := item[schema.FieldID].(string); itemID == id {
			return i
		}
	}
	return -1
}

// Map applies fn to a copy of every record
func (l *List) Map(fn func(map[string]interface{}) interface{}) []interface{} {
	out := make([]interface{}, len(l.data))
	for i, item := range l.data {
		out[i] = fn(tracking.DeepCopyMap(item))
	}
	return out
}

// Add saves a new record and appends it to the list
func (l *List) Add(ctx context.Context, payload map[string]interface{}) (*record.Record, error) {
	r, err := record.Add(ctx, l.sess, l.schema.Name(), payload)
	if err != nil {
		return nil, err
	}
	l.data = append(l.data, r.Data())
	return r, nil
}

// RemoveByID deletes the record with id from the database and the list.
// With ignoreNotFound an id missing from the list is not an error.
func (l *List) RemoveByID(ctx context.Context, id string, ignoreNotFound bool) error {
	i := l.indexOf(id)
	if i < 0 {
		if ignoreNotFound {
			return nil
		}
		return fmt.Errorf("%w: could not remove %s %q, it is not in the list", ormerr.ErrNotFound, l.schema.ModelName(), id)
	}

	r, err := record.FromPayload(l.sess, l.schema, l.data[i])
	if err != nil {
		return err
	}
	if err := r.Remove(ctx); err != nil {
		return err
	}
	l.data = append(l.data[:i:i], l.data[i+1:]...)
	return nil
}
