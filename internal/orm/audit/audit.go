// Package audit records changes to audited models and reads them back
package audit

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/paths"
	"github.com/nickmessing/firemodel/internal/orm/schema"
	"github.com/nickmessing/firemodel/internal/orm/session"
)

// Action is what happened to the audited record
type Action string

const (
	// Added is logged when a record is first saved
	Added Action = "added"
	// Updated is logged for property, push-key and relationship writes
	Updated Action = "updated"
	// Removed is logged when a record is deleted
	Removed Action = "removed"
)

// Change is one property's value before and after an update
type Change struct {
	Property string      `json:"property" mapstructure:"property"`
	Before   interface{} `json:"before,omitempty" mapstructure:"before"`
	After    interface{} `json:"after,omitempty" mapstructure:"after"`
}

// Entry is one audit log item. ID is the log key and is only set on
// entries read back from the database.
type Entry struct {
	ID        string   `json:"-" mapstructure:"id"`
	RecordID  string   `json:"recordId" mapstructure:"recordId"`
	Action    Action   `json:"action" mapstructure:"action"`
	CreatedAt int64    `json:"createdAt" mapstructure:"createdAt"`
	Changes   []Change `json:"changes,omitempty" mapstructure:"changes"`
}

// Path returns {auditLogs}/{plural}/all for a model
func Path(sess *session.Session, s *schema.EffectiveSchema) string {
	return paths.Join(sess.AuditLogs(), s.Plural(), "all")
}

// Writer appends audit entries for audited models
type Writer struct {
	sess *session.Session
}

// NewWriter creates a writer bound to sess
func NewWriter(sess *session.Session) *Writer {
	return &Writer{sess: sess}
}

// Prepare builds the entry for a change and the absolute path it belongs
// at. It returns false when the model is not audited.
func (w *Writer) Prepare(s *schema.EffectiveSchema, recordID string, action Action, changes []Change) (string, Entry, bool) {
	if !s.Audit() {
		return "", Entry{}, false
	}
	e := Entry{
		RecordID:  recordID,
		Action:    action,
		CreatedAt: w.sess.Now(),
		Changes:   changes,
	}
	return paths.Join(Path(w.sess, s), w.sess.NewKey()), e, true
}

// Stage adds the entry for a change to a multi-path write with an empty base
func (w *Writer) Stage(mpw *db.MultiPathWrite, s *schema.EffectiveSchema, recordID string, action Action, changes []Change) {
	if p, e, ok := w.Prepare(s, recordID, action, changes); ok {
		mpw.Add(p, e)
	}
}

// Write stores the entry for a change on its own
func (w *Writer) Write(ctx context.Context, s *schema.EffectiveSchema, recordID string, action Action, changes []Change) error {
	p, e, ok := w.Prepare(s, recordID, action, changes)
	if !ok {
		return nil
	}
	client, err := w.sess.RequireDB()
	if err != nil {
		return err
	}
	if err := client.Set(ctx, p, e); err != nil {
		return fmt.Errorf("failed to write audit entry for %s/%s: %w", s.ModelName(), recordID, err)
	}
	return nil
}

// Decode converts a record read from the database into an Entry
func Decode(record map[string]interface{}) (Entry, error) {
	var e Entry
	if err := mapstructure.Decode(record, &e); err != nil {
		return Entry{}, fmt.Errorf("failed to decode audit entry: %w", err)
	}
	return e, nil
}
