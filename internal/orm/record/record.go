// Package record is the single-entity facade of the model layer. A Record
// moves from empty to initialized to persisted; every write is applied
// locally first, announced to the dispatcher, then sent to the database as
// one multi-path write.
package record

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/audit"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/paths"
	"github.com/nickmessing/firemodel/internal/orm/schema"
	"github.com/nickmessing/firemodel/internal/orm/session"
	"github.com/nickmessing/firemodel/internal/orm/tracking"
)

// Record is one instance of a model. It is not safe for concurrent mutation.
type Record struct {
	sess       *session.Session
	schema     *schema.EffectiveSchema
	tracker    *tracking.ChangeTracker
	audit      *audit.Writer
	existsOnDB bool
}

// New creates an empty record of model
func New(sess *session.Session, model string) (*Record, error) {
	s, err := sess.Resolve(model)
	if err != nil {
		return nil, err
	}
	return newRecord(sess, s, nil), nil
}

func newRecord(sess *session.Session, s *schema.EffectiveSchema, payload map[string]interface{}) *Record {
	return &Record{
		sess:    sess,
		schema:  s,
		tracker: tracking.NewChangeTracker(payload),
		audit:   audit.NewWriter(sess),
	}
}

// Create returns an initialized record that has not been saved
func Create(sess *session.Session, model string, payload map[string]interface{}) (*Record, error) {
	r, err := New(sess, model)
	if err != nil {
		return nil, err
	}
	if err := r.Initialize(payload); err != nil {
		return nil, err
	}
	return r, nil
}

// Add creates a record from payload and saves it under a new id
func Add(ctx context.Context, sess *session.Session, model string, payload map[string]interface{}) (*Record, error) {
	r, err := Create(sess, model, payload)
	if err != nil {
		return nil, err
	}
	if err := r.Save(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Get loads the record of model stored under id
func Get(ctx context.Context, sess *session.Session, model, id string) (*Record, error) {
	r, err := New(sess, model)
	if err != nil {
		return nil, err
	}
	if err := r.Load(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// Remove deletes the record of model stored under id
func Remove(ctx context.Context, sess *session.Session, model, id string) error {
	r, err := New(sess, model)
	if err != nil {
		return err
	}
	if err := r.SetID(id); err != nil {
		return err
	}
	return r.Remove(ctx)
}

// FromPayload wraps a payload already read from the database. The payload
// must carry the record's id.
func FromPayload(sess *session.Session, s *schema.EffectiveSchema, payload map[string]interface{}) (*Record, error) {
	id, _ := payload[schema.FieldID].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: payload of %s carries no id", ormerr.ErrInvalidPath, s.ModelName())
	}
	r := newRecord(sess, s, withDefaults(s, payload))
	r.existsOnDB = true
	return r, nil
}

// withDefaults gives every hasMany property an empty mapping; the database
// does not keep empty mappings
func withDefaults(s *schema.EffectiveSchema, payload map[string]interface{}) map[string]interface{} {
	out := tracking.DeepCopyMap(payload)
	for _, name := range s.HasManyProperties() {
		if _, ok := out[name]; !ok {
			out[name] = map[string]interface{}{}
		}
	}
	return out
}

// Initialize copies payload into the record, defaulting hasMany
// relationships to empty mappings and the timestamps to now
func (r *Record) Initialize(payload map[string]interface{}) error {
	if raw, ok := payload[schema.FieldID]; ok {
		id, isString := raw.(string)
		if !isString {
			return fmt.Errorf("%w: id of %s must be a string, got %T", ormerr.ErrNotAllowed, r.schema.ModelName(), raw)
		}
		if id != r.ID() {
			if err := r.SetID(id); err != nil {
				return err
			}
		}
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k != schema.FieldID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.tracker.Set(k, payload[k])
	}

	for _, name := range r.schema.HasManyProperties() {
		if r.tracker.Value(name) == nil {
			r.tracker.Set(name, map[string]interface{}{})
		}
	}
	now := r.sess.Now()
	for _, field := range []string{schema.FieldCreatedAt, schema.FieldLastUpdated} {
		if r.tracker.Value(field) == nil {
			r.tracker.Set(field, now)
		}
	}
	return nil
}

// ID returns the record id, or "" before one is assigned
func (r *Record) ID() string {
	id, _ := r.tracker.Value(schema.FieldID).(string)
	return id
}

// SetID assigns the record id. An id can be assigned only once.
func (r *Record) SetID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: the id of a %s can not be empty", ormerr.ErrNotAllowed, r.schema.ModelName())
	}
	if current := r.ID(); current != "" {
		return fmt.Errorf("%w: you may not re-set the id of a %s (%s)", ormerr.ErrNotAllowed, r.schema.ModelName(), current)
	}
	r.tracker.Set(schema.FieldID, id)
	return nil
}

// Schema returns the effective schema of the record's model
func (r *Record) Schema() *schema.EffectiveSchema { return r.schema }

// ModelName returns the lowercase model name
func (r *Record) ModelName() string { return r.schema.ModelName() }

// PluralName returns the plural model name
func (r *Record) PluralName() string { return r.schema.Plural() }

// ExistsOnDB reports whether the record was saved or loaded
func (r *Record) ExistsOnDB() bool { return r.existsOnDB }

// DBPath returns the database path of the record
func (r *Record) DBPath() (string, error) {
	return paths.DBPath(r.schema, r.ID())
}

// LocalPath returns the local state path of the record in slash form
func (r *Record) LocalPath() (string, error) {
	return paths.LocalPath(r.schema, r.ID())
}

// Data returns a copy of the record payload
func (r *Record) Data() map[string]interface{} {
	return r.tracker.Current()
}

// Get returns a copy of the value at a slash separated property path
func (r *Record) Get(prop string) interface{} {
	return r.tracker.Value(prop)
}

// IsDirty reports whether the record holds changes the database has not
// acknowledged
func (r *Record) IsDirty() bool {
	return r.tracker.HasChanges()
}

// Save writes a new record under a freshly generated id
func (r *Record) Save(ctx context.Context) error {
	if id := r.ID(); id != "" {
		return fmt.Errorf("%w: %s already has id %q; use Set or UpdateProps to change it", ormerr.ErrInvalidSave, r.schema.ModelName(), id)
	}
	client, err := r.sess.RequireDB()
	if err != nil {
		return err
	}

	id := r.sess.NewKey()
	r.tracker.Set(schema.FieldID, id)
	now := r.sess.Now()
	for _, field := range []string{schema.FieldCreatedAt, schema.FieldLastUpdated} {
		if r.tracker.Value(field) == nil {
			r.tracker.Set(field, now)
		}
	}
	dbPath, err := r.DBPath()
	if err != nil {
		r.tracker.Set(schema.FieldID, nil)
		return err
	}

	payload := r.tracker.Current()
	if r.schema.Audit() {
		w := db.NewMultiPathWrite(client, "").Add(dbPath, payload)
		r.audit.Stage(w, r.schema, id, audit.Added, nil)
		err = w.Execute(ctx)
	} else if err = client.Set(ctx, dbPath, payload); err != nil {
		err = fmt.Errorf("failed to save %s: %w", r, err)
	}
	if err != nil {
		r.tracker.Set(schema.FieldID, nil)
		return err
	}

	r.existsOnDB = true
	r.tracker.Commit()
	r.sess.Logger().Debug("record saved",
		zap.String("model", r.schema.ModelName()),
		zap.String("id", id))
	r.sess.Dispatch(r.event(dispatch.RecordAdded))
	return nil
}

// Load replaces the record's payload with the one stored under id
func (r *Record) Load(ctx context.Context, id string) error {
	client, err := r.sess.RequireDB()
	if err != nil {
		return err
	}
	if current := r.ID(); current != "" && current != id {
		return fmt.Errorf("%w: %s already has id %q", ormerr.ErrNotAllowed, r.schema.ModelName(), current)
	}
	dbPath, err := paths.DBPath(r.schema, id)
	if err != nil {
		return err
	}

	value, err := client.Get(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", dbPath, err)
	}
	payload, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: no %s with id %q at %s", ormerr.ErrNotFound, r.schema.ModelName(), id, dbPath)
	}
	payload[schema.FieldID] = id

	r.tracker = tracking.NewChangeTracker(withDefaults(r.schema, payload))
	r.existsOnDB = true
	return nil
}

// Set writes one property. The local payload changes immediately and a
// RECORD_CHANGED_LOCALLY event is dispatched before the database write.
func (r *Record) Set(ctx context.Context, prop string, value interface{}) error {
	if err := r.checkPaths(prop); err != nil {
		return err
	}
	return r.write(ctx, map[string]interface{}{prop: value})
}

// PushKey appends value under a new key of a push-key property and
// returns the key
func (r *Record) PushKey(ctx context.Context, prop string, value interface{}) (string, error) {
	if !r.schema.IsPushKey(prop) {
		return "", fmt.Errorf("%w: %s is not a push-key property of %s; declared push-keys are %v",
			ormerr.ErrNotPushKey, prop, r.schema.ModelName(), r.schema.PushKeys())
	}
	if !r.existsOnDB {
		return "", fmt.Errorf("%w: save the %s before pushing onto %s", ormerr.ErrNotOnDB, r.schema.ModelName(), prop)
	}

	key := r.sess.NewKey()
	if err := r.write(ctx, map[string]interface{}{prop + "/" + key: value}); err != nil {
		return "", err
	}
	return key, nil
}

// AddHasMany adds the foreign key ref to a hasMany relationship. A nil
// value stores true. Adding a key that is already present only logs a
// warning.
func (r *Record) AddHasMany(ctx context.Context, prop, ref string, value interface{}) error {
	rel, err := r.schema.Relationship(prop)
	if err != nil || rel.RelType != schema.RelationHasMany {
		return fmt.Errorf("%w: %s is not a hasMany relationship of %s", ormerr.ErrInvalidRelationship, prop, r.schema.ModelName())
	}
	if ref == "" || strings.Contains(ref, "/") {
		return fmt.Errorf("%w: invalid foreign key %q", ormerr.ErrNotAllowed, ref)
	}
	if value == nil {
		value = true
	}

	if existing, ok := r.Get(prop).(map[string]interface{}); ok {
		if _, found := existing[ref]; found {
			r.sess.Logger().Warn("foreign key already exists",
				zap.String("model", r.schema.ModelName()),
				zap.String("id", r.ID()),
				zap.String("relationship", prop),
				zap.String("fk", ref))
			return nil
		}
	}
	return r.write(ctx, map[string]interface{}{prop + "/" + ref: value})
}

// UpdateProps writes several properties in one multi-path write. Mapping
// values are merged over the current mapping one level deep.
func (r *Record) UpdateProps(ctx context.Context, props map[string]interface{}) error {
	if len(props) == 0 {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	if err := r.checkPaths(keys...); err != nil {
		return err
	}

	updates := make(map[string]interface{}, len(props))
	for k, v := range props {
		patch, isMap := v.(map[string]interface{})
		current, hasMap := r.Get(k).(map[string]interface{})
		if isMap && hasMap {
			for pk, pv := range patch {
				current[pk] = pv
			}
			updates[k] = current
			continue
		}
		updates[k] = v
	}
	return r.write(ctx, updates)
}

// Update applies values to a persisted record with a plain database update.
// Unlike UpdateProps it does not stamp lastUpdated.
func (r *Record) Update(ctx context.Context, values map[string]interface{}) error {
	if !r.existsOnDB {
		return fmt.Errorf("%w: %s must be saved before it can be updated", ormerr.ErrNotOnDB, r.schema.ModelName())
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	if err := r.checkPaths(keys...); err != nil {
		return err
	}
	client, err := r.sess.RequireDB()
	if err != nil {
		return err
	}
	dbPath, err := r.DBPath()
	if err != nil {
		return err
	}

	if err := client.Update(ctx, dbPath, values); err != nil {
		return fmt.Errorf("failed to update %s: %w", r, err)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.tracker.Set(k, values[k])
	}
	r.tracker.Commit(keys...)
	r.sess.Dispatch(r.event(dispatch.RecordChanged))
	return nil
}

// Remove deletes the record from the database
func (r *Record) Remove(ctx context.Context) error {
	client, err := r.sess.RequireDB()
	if err != nil {
		return err
	}
	dbPath, err := r.DBPath()
	if err != nil {
		return err
	}

	previous := r.tracker.Current()
	if r.schema.Audit() {
		w := db.NewMultiPathWrite(client, "").Add(dbPath, nil)
		r.audit.Stage(w, r.schema, r.ID(), audit.Removed, nil)
		err = w.Execute(ctx)
	} else if err = client.Remove(ctx, dbPath); err != nil {
		err = fmt.Errorf("failed to remove %s: %w", r, err)
	}
	if err != nil {
		return err
	}

	r.existsOnDB = false
	e := r.event(dispatch.RecordRemoved)
	e.Value = previous
	r.sess.Dispatch(e)
	return nil
}

// checkPaths rejects writes to the id and batches whose paths overlap
func (r *Record) checkPaths(props ...string) error {
	cleaned := make([]string, len(props))
	for i, p := range props {
		cleaned[i] = paths.Join(p)
		if cleaned[i] == "" {
			return fmt.Errorf("%w: empty property path on %s", ormerr.ErrNotAllowed, r.schema.ModelName())
		}
		if paths.Segments(cleaned[i])[0] == schema.FieldID {
			return fmt.Errorf("%w: the id of a %s can only be set once", ormerr.ErrNotAllowed, r.schema.ModelName())
		}
	}
	for i := range cleaned {
		for j := i + 1; j < len(cleaned); j++ {
			if db.Overlaps(cleaned[i], cleaned[j]) {
				return fmt.Errorf("%w: %q and %q overlap", ormerr.ErrNotAllowed, cleaned[i], cleaned[j])
			}
		}
	}
	return nil
}

// write applies updates locally, stamps lastUpdated and sends everything
// as one multi-path write. On failure the local changes stay in place and
// the record remains dirty.
func (r *Record) write(ctx context.Context, updates map[string]interface{}) error {
	client, err := r.sess.RequireDB()
	if err != nil {
		return err
	}
	dbPath, err := r.DBPath()
	if err != nil {
		return err
	}

	batch := make(map[string]interface{}, len(updates)+1)
	for p, v := range updates {
		batch[paths.Join(p)] = v
	}
	batch[schema.FieldLastUpdated] = r.sess.Now()

	changed := make([]string, 0, len(batch))
	for p := range batch {
		changed = append(changed, p)
	}
	sort.Strings(changed)

	w := db.NewMultiPathWrite(client, "")
	changes := make([]audit.Change, 0, len(changed))
	for _, p := range changed {
		before := r.tracker.Value(p)
		r.tracker.Set(p, batch[p])
		w.Add(paths.Join(dbPath, p), batch[p])
		if p != schema.FieldLastUpdated {
			changes = append(changes, audit.Change{Property: p, Before: before, After: batch[p]})
		}
	}
	r.audit.Stage(w, r.schema, r.ID(), audit.Updated, changes)

	local := r.event(dispatch.RecordChangedLocally)
	local.Paths = changed
	r.sess.Dispatch(local)

	if err := w.Execute(ctx); err != nil {
		r.sess.Logger().Warn("record write failed",
			zap.String("model", r.schema.ModelName()),
			zap.String("id", r.ID()),
			zap.Strings("paths", changed),
			zap.Error(err))
		return err
	}

	r.tracker.Commit(changed...)
	r.sess.Dispatch(r.event(dispatch.RecordChanged))
	return nil
}

func (r *Record) event(kind dispatch.Kind) dispatch.Event {
	dbPath, _ := r.DBPath()
	localPath, _ := r.LocalPath()
	return dispatch.Event{
		Type:       kind,
		ModelName:  r.schema.ModelName(),
		PluralName: r.schema.Plural(),
		DBPath:     dbPath,
		LocalPath:  paths.DotNotation(localPath),
		Key:        r.ID(),
		Value:      r.tracker.Current(),
	}
}

// String returns Record::{model}@{id}
func (r *Record) String() string {
	return fmt.Sprintf("Record::%s@%s", r.schema.ModelName(), r.ID())
}

type recordJSON struct {
	ModelName  string                 `json:"modelName"`
	PluralName string                 `json:"pluralName"`
	Key        string                 `json:"key,omitempty"`
	DBPath     string                 `json:"dbPath,omitempty"`
	LocalPath  string                 `json:"localPath,omitempty"`
	ExistsOnDB bool                   `json:"existsOnDB"`
	Data       map[string]interface{} `json:"data"`
}

// MarshalJSON implements json.Marshaler
func (r *Record) MarshalJSON() ([]byte, error) {
	dbPath, _ := r.DBPath()
	localPath, _ := r.LocalPath()
	return json.Marshal(recordJSON{
		ModelName:  r.schema.ModelName(),
		PluralName: r.schema.Plural(),
		Key:        r.ID(),
		DBPath:     dbPath,
		LocalPath:  localPath,
		ExistsOnDB: r.existsOnDB,
		Data:       r.tracker.Current(),
	})
}
