package audit

import (
	"context"
	"fmt"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/query"
	"github.com/nickmessing/firemodel/internal/orm/schema"
	"github.com/nickmessing/firemodel/internal/orm/session"
)

// List reads a model's audit log ordered by createdAt
type List struct {
	sess   *session.Session
	schema *schema.EffectiveSchema
}

// NewList creates an audit log reader for model
func NewList(sess *session.Session, model string) (*List, error) {
	s, err := sess.Resolve(model)
	if err != nil {
		return nil, err
	}
	return &List{sess: sess, schema: s}, nil
}

// DBPath returns the path the log is stored under
func (l *List) DBPath() string {
	return Path(l.sess, l.schema)
}

func (l *List) query() *query.Query {
	return query.New(l.DBPath()).OrderByChild("createdAt")
}

// First returns n entries after skipping the offset oldest
func (l *List) First(ctx context.Context, n, offset int) ([]Entry, error) {
	if err := checkWindow(n, offset); err != nil {
		return nil, err
	}
	entries, err := l.run(ctx, l.query().LimitToFirst(n+offset))
	if err != nil {
		return nil, err
	}
	if offset >= len(entries) {
		return []Entry{}, nil
	}
	return entries[offset:], nil
}

// Last returns n entries after skipping the offset newest
func (l *List) Last(ctx context.Context, n, offset int) ([]Entry, error) {
	if err := checkWindow(n, offset); err != nil {
		return nil, err
	}
	entries, err := l.run(ctx, l.query().LimitToLast(n+offset))
	if err != nil {
		return nil, err
	}
	if offset >= len(entries) {
		return []Entry{}, nil
	}
	return entries[:len(entries)-offset], nil
}

func checkWindow(n, offset int) error {
	if n <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ormerr.ErrNotAllowed, n)
	}
	if offset < 0 {
		return fmt.Errorf("%w: offset can not be negative, got %d", ormerr.ErrNotAllowed, offset)
	}
	return nil
}

// Since returns the entries created at or after t
func (l *List) Since(ctx context.Context, t int64) ([]Entry, error) {
	return l.run(ctx, l.query().StartAt(t))
}

// Before returns the entries created at or before t
func (l *List) Before(ctx context.Context, t int64) ([]Entry, error) {
	return l.run(ctx, l.query().EndAt(t))
}

// Between returns the entries created from from through to
func (l *List) Between(ctx context.Context, from, to int64) ([]Entry, error) {
	return l.run(ctx, l.query().StartAt(from).EndAt(to))
}

// ForRecord returns the entries of one record
func (l *List) ForRecord(ctx context.Context, recordID string) ([]Entry, error) {
	entries, err := l.run(ctx, l.query())
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *List) run(ctx context.Context, q *query.Query) ([]Entry, error) {
	client, err := l.sess.RequireDB()
	if err != nil {
		return nil, err
	}
	return runQuery(ctx, client, q)
}

func runQuery(ctx context.Context, client db.Client, q *query.Query) ([]Entry, error) {
	records, err := client.RunQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		e, err := Decode(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
