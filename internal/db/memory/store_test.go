package memory

import (
	"context"
	"testing"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReadWrite(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Write(ctx, []db.Write{
		{Path: "people/a", Value: map[string]interface{}{"name": "Ann", "age": float64(30)}},
		{Path: "people/b/name", Value: "Bob"},
	}))

	v, err := s.Read(ctx, "people/a/name")
	require.NoError(t, err)
	assert.Equal(t, "Ann", v)

	v, err = s.Read(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"a": map[string]interface{}{"name": "Ann", "age": float64(30)},
		"b": map[string]interface{}{"name": "Bob"},
	}, v)

	v, err = s.Read(ctx, "people/zed")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStoreDeletePrunesParents(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Write(ctx, []db.Write{{Path: "a/b/c", Value: "x"}}))
	require.NoError(t, s.Write(ctx, []db.Write{{Path: "a/b/c"}}))

	v, err := s.Read(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, v)

	root, err := s.Read(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, root)
}

func TestStoreReplacesScalarWithMapping(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Write(ctx, []db.Write{
		{Path: "a", Value: "scalar"},
		{Path: "a/b", Value: "nested"},
	}))

	v, err := s.Read(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"b": "nested"}, v)
}

func TestStoreReadIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Write(ctx, []db.Write{{Path: "a", Value: map[string]interface{}{"x": "1"}}}))

	v, err := s.Read(ctx, "a")
	require.NoError(t, err)
	v.(map[string]interface{})["x"] = "mutated"

	again, err := s.Read(ctx, "a/x")
	require.NoError(t, err)
	assert.Equal(t, "1", again)
}

func TestStoreClosed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	_, err := s.Read(context.Background(), "a")
	assert.ErrorIs(t, err, db.ErrClosed)
	assert.ErrorIs(t, s.Write(context.Background(), nil), db.ErrClosed)
}
