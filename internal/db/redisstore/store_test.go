package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/query"
)

func setupTestRedis(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewWithClient(client, DefaultConfig(), nil)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	store, err := New(cfg, nil)
	require.NoError(t, err)
	defer store.Close()
}

func TestNew_ConnectionError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "localhost:99999"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestStore_WriteStoresLeaves(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, []db.Write{{
		Path: "people/a",
		Value: map[string]interface{}{
			"name": "Ann",
			"age":  float64(30),
			"tags": map[string]interface{}{"k1": "go"},
		},
	}}))

	got, err := mr.Get("firemodel:people/a/name")
	require.NoError(t, err)
	assert.Equal(t, `"Ann"`, got)

	got, err = mr.Get("firemodel:people/a/age")
	require.NoError(t, err)
	assert.Equal(t, `30`, got)

	assert.True(t, mr.Exists("firemodel:people/a/tags/k1"))
	assert.False(t, mr.Exists("firemodel:people/a"))
}

func TestStore_Read(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, []db.Write{
		{Path: "people/a", Value: map[string]interface{}{"name": "Ann", "tags": map[string]interface{}{"k1": "go"}}},
		{Path: "people/b/name", Value: "Bob"},
	}))

	v, err := store.Read(ctx, "people/a/name")
	require.NoError(t, err)
	assert.Equal(t, "Ann", v)

	v, err = store.Read(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"a": map[string]interface{}{"name": "Ann", "tags": map[string]interface{}{"k1": "go"}},
		"b": map[string]interface{}{"name": "Bob"},
	}, v)

	v, err = store.Read(ctx, "companies")
	require.NoError(t, err)
	assert.Nil(t, v)

	root, err := store.Read(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, root, "people")
}

func TestStore_OverwriteRemovesSubtree(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, []db.Write{
		{Path: "people/a", Value: map[string]interface{}{"name": "Ann", "age": float64(30)}},
	}))
	require.NoError(t, store.Write(ctx, []db.Write{
		{Path: "people/a", Value: map[string]interface{}{"name": "Anna"}},
	}))
	assert.False(t, mr.Exists("firemodel:people/a/age"))

	require.NoError(t, store.Write(ctx, []db.Write{{Path: "people/a", Value: "scalar"}}))
	assert.False(t, mr.Exists("firemodel:people/a/name"))
	v, err := store.Read(ctx, "people/a")
	require.NoError(t, err)
	assert.Equal(t, "scalar", v)

	require.NoError(t, store.Write(ctx, []db.Write{{Path: "people/a/name", Value: "nested"}}))
	assert.False(t, mr.Exists("firemodel:people/a"))

	require.NoError(t, store.Write(ctx, []db.Write{{Path: "people"}}))
	v, err = store.Read(ctx, "people")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStore_GlobCharactersInPath(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, []db.Write{
		{Path: "a*/x", Value: "star"},
		{Path: "ab/x", Value: "plain"},
	}))

	v, err := store.Read(ctx, "a*")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"x": "star"}, v)
}

func TestStore_WithDatabase(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	d := db.New(store)

	require.NoError(t, d.MultiPathSet(ctx, map[string]interface{}{
		"people/a": map[string]interface{}{"name": "Ann", "lastUpdated": 2},
		"people/b": map[string]interface{}{"name": "Bob", "lastUpdated": 1},
	}))

	records, err := d.RunQuery(ctx, query.New("people").OrderByChild("lastUpdated"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0]["id"])
	assert.Equal(t, "a", records[1]["id"])
}

func TestStore_Closed(t *testing.T) {
	store, _ := setupTestRedis(t)
	require.NoError(t, store.Close())

	_, err := store.Read(context.Background(), "a")
	assert.ErrorIs(t, err, db.ErrClosed)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
}
