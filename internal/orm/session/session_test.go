package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/db/memory"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/schema"
)

func TestDefaults(t *testing.T) {
	s := New()

	assert.NotNil(t, s.Registry())
	assert.NotNil(t, s.Dispatcher())
	assert.NotNil(t, s.Watchers())
	assert.NotNil(t, s.Logger())
	assert.Nil(t, s.DB())
	assert.Equal(t, DefaultAuditLogs, s.AuditLogs())
	assert.Positive(t, s.Now())

	_, err := s.RequireDB()
	assert.ErrorIs(t, err, ormerr.ErrNoDatabase)
}

func TestKeysAreUniqueAndOrdered(t *testing.T) {
	s := New()
	a := s.NewKey()
	b := s.NewKey()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestOptions(t *testing.T) {
	var got []dispatch.Event
	database := db.New(memory.New())

	s := New(
		WithDB(database),
		WithClock(func() int64 { return 42 }),
		WithKeyGenerator(func() string { return "k1" }),
		WithAuditLogs("logs"),
		WithDispatch(func(e dispatch.Event) { got = append(got, e) }),
	)

	client, err := s.RequireDB()
	require.NoError(t, err)
	assert.Same(t, database, client)
	assert.Equal(t, int64(42), s.Now())
	assert.Equal(t, "k1", s.NewKey())
	assert.Equal(t, "logs", s.AuditLogs())

	s.Dispatch(dispatch.Event{Type: dispatch.RecordAdded})
	require.Len(t, got, 1)
	assert.Equal(t, dispatch.RecordAdded, got[0].Type)
}

func TestDispatchDefaultsToDispatcher(t *testing.T) {
	s := New()
	var kinds []dispatch.Kind
	s.Dispatcher().On(&dispatch.Listener{
		Name: "collect",
		Fn: func(_ context.Context, e dispatch.Event) error {
			kinds = append(kinds, e.Type)
			return nil
		},
	})

	s.Dispatch(dispatch.Event{Type: dispatch.RecordRemoved})
	assert.Equal(t, []dispatch.Kind{dispatch.RecordRemoved}, kinds)
}

func TestUsingSharesRegistries(t *testing.T) {
	s := New()
	other := db.New(memory.New())

	scoped := s.Using(other)
	assert.Nil(t, s.DB())
	assert.Same(t, other, scoped.DB())
	assert.Same(t, s.Registry(), scoped.Registry())
	assert.Same(t, s.Watchers(), scoped.Watchers())
}

func TestDefine(t *testing.T) {
	s := New()
	es, err := s.Define(schema.NewModel("Person").Property("name", schema.TypeString))
	require.NoError(t, err)
	assert.Equal(t, "people", es.Plural())

	resolved, err := s.Resolve("Person")
	require.NoError(t, err)
	assert.True(t, resolved.IsProperty("name"))

	_, err = s.Resolve("Nobody")
	assert.ErrorIs(t, err, ormerr.ErrUnknownModel)
}
