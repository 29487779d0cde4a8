package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/cli/config"
	"github.com/nickmessing/firemodel/internal/db/memory"
	"github.com/nickmessing/firemodel/internal/db/redisstore"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
)

const projectConfig = `
database:
  backend: sqlite
  url: file:%s
dispatch:
  workers: 0
models:
  - name: Person
    audit: true
    properties:
      - name: name
        type: string
      - name: age
        type: number
    relationships:
      - name: employer
        type: belongsTo
        model: Company
    indexes:
      - name: name
  - name: Company
`

// newProject writes a configuration backed by an SQLite file in a
// temporary directory and returns the configuration path
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "firemodel.yaml")
	content := strings.Replace(projectConfig, "%s", filepath.Join(dir, "records.db"), 1)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(ctx context.Context, cfgPath string, args ...string) (string, error) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath, "--no-color"}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func run(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := execute(context.Background(), cfgPath, args...)
	require.NoError(t, err, out)
	return out
}

type recordOutput struct {
	Key        string                 `json:"key"`
	DBPath     string                 `json:"dbPath"`
	ExistsOnDB bool                   `json:"existsOnDB"`
	Data       map[string]interface{} `json:"data"`
}

func decodeRecord(t *testing.T, out string) recordOutput {
	t.Helper()
	var r recordOutput
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "firemodel", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	for _, name := range []string{"version", "init", "models", "get", "add", "set", "remove", "list", "audit", "watch", "serve"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	for _, flag := range []string{"config", "verbose", "no-color", "json"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	defer func() { Version, GitCommit = "dev", "unknown" }()

	out := run(t, "", "version")
	assert.Contains(t, out, "firemodel version: 1.0.0-test")
	assert.Contains(t, out, "Git commit: abc123")
	assert.Contains(t, out, "Go version: ")
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")

	out := run(t, "", "init", dir, "--yes", "--backend", "sqlite", "--url", "file:records.db")
	assert.Contains(t, out, "firemodel.yaml")

	cfg, err := config.LoadFile(filepath.Join(dir, "firemodel.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, cfg.Database.Backend)
	assert.Equal(t, "file:records.db", cfg.Database.URL)
	assert.Equal(t, "auditing", cfg.Audit.Path)

	_, err = execute(context.Background(), "", "init", dir, "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	run(t, "", "init", dir, "--yes", "--force", "--backend", "memory")
	cfg, err = config.LoadFile(filepath.Join(dir, "firemodel.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.Database.Backend)
}

func TestInitRejectsInvalidSettings(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(context.Background(), "", "init", dir, "--yes", "--backend", "postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestModelsCommand(t *testing.T) {
	cfgPath := newProject(t)

	out := run(t, cfgPath, "models")
	assert.Contains(t, out, "MODEL")
	assert.Contains(t, out, "Person")
	assert.Contains(t, out, "people")

	out = run(t, cfgPath, "models", "Person", "--json")
	var detail modelDetail
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, "people", detail.Plural)
	assert.True(t, detail.Audit)
	require.GreaterOrEqual(t, len(detail.Properties), 2)
	assert.Equal(t, propertyInfo{Name: "name", Type: "string"}, detail.Properties[0])
	assert.Equal(t, propertyInfo{Name: "age", Type: "number"}, detail.Properties[1])
	assert.Equal(t, []relationshipInfo{{Name: "employer", Type: "belongsTo", Model: "Company"}}, detail.Relationships)
	require.NotEmpty(t, detail.Indexes)
	assert.Equal(t, indexInfo{Name: "name"}, detail.Indexes[0])

	out = run(t, cfgPath, "models", "Person")
	assert.Contains(t, out, "PROPERTY")
	assert.Contains(t, out, "employer")

	_, err := execute(context.Background(), cfgPath, "models", "Persn")
	assert.ErrorIs(t, err, ormerr.ErrUnknownModel)
	assert.Equal(t, []string{"Company", "Person"}, knownModels)
}

func TestRecordCommands(t *testing.T) {
	cfgPath := newProject(t)

	added := decodeRecord(t, run(t, cfgPath, "add", "Person", "name=Ann", "age=42", "--json"))
	require.NotEmpty(t, added.Key)
	assert.True(t, added.ExistsOnDB)
	assert.Equal(t, "people/"+added.Key, added.DBPath)
	assert.Equal(t, "Ann", added.Data["name"])
	assert.Equal(t, float64(42), added.Data["age"])

	out := run(t, cfgPath, "get", "Person", added.Key)
	assert.Contains(t, out, "Ann")
	assert.Contains(t, out, "42")

	updated := decodeRecord(t, run(t, cfgPath, "set", "Person", added.Key, "age=43", "--json"))
	assert.Equal(t, float64(43), updated.Data["age"])

	fetched := decodeRecord(t, run(t, cfgPath, "get", "Person", added.Key, "--json"))
	assert.Equal(t, float64(43), fetched.Data["age"])
	assert.Equal(t, "Ann", fetched.Data["name"])

	run(t, cfgPath, "remove", "Person", added.Key)
	_, err := execute(context.Background(), cfgPath, "get", "Person", added.Key)
	assert.ErrorIs(t, err, ormerr.ErrNotFound)

	out = run(t, cfgPath, "audit", "Person", "--record", added.Key, "--json")
	var entries []struct {
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "added", entries[0].Action)
	assert.Equal(t, "updated", entries[1].Action)
	assert.Equal(t, "removed", entries[2].Action)

	out = run(t, cfgPath, "audit", "Person")
	assert.Contains(t, out, "age: 42 -> 43")
}

func TestRecordCommandErrors(t *testing.T) {
	cfgPath := newProject(t)

	_, err := execute(context.Background(), cfgPath, "add", "Planet", "name=Mars")
	assert.ErrorIs(t, err, ormerr.ErrUnknownModel)

	_, err = execute(context.Background(), cfgPath, "add", "Person", "nameAnn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected property=value")

	_, err = execute(context.Background(), cfgPath, "get", "Person")
	assert.Error(t, err)
}

func TestListCommand(t *testing.T) {
	cfgPath := newProject(t)
	run(t, cfgPath, "add", "Person", "name=Ann", "age=42")
	run(t, cfgPath, "add", "Person", "name=Bob", "age=17")

	tests := []struct {
		name  string
		args  []string
		names []string
	}{
		{name: "all", args: nil, names: []string{"Ann", "Bob"}},
		{name: "where", args: []string{"--where", "name=Bob"}, names: []string{"Bob"}},
		{name: "first", args: []string{"--first", "1"}, names: nil},
		{name: "since the epoch", args: []string{"--since", "0"}, names: []string{"Ann", "Bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := run(t, cfgPath, append([]string{"list", "Person", "--json"}, tt.args...)...)
			var records []map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(out), &records))

			if tt.names == nil {
				assert.Len(t, records, 1)
				return
			}
			names := make([]string, 0, len(records))
			for _, r := range records {
				names = append(names, r["name"].(string))
			}
			assert.ElementsMatch(t, tt.names, names)
		})
	}

	out := run(t, cfgPath, "list", "Person", "--columns", "name,age")
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "2 people")

	out = run(t, cfgPath, "list", "Company")
	assert.Contains(t, out, "No companies found")

	_, err := execute(context.Background(), cfgPath, "list", "Person", "--first", "1", "--last", "1")
	assert.Error(t, err)
}

func TestWatchCommand(t *testing.T) {
	cfgPath := newProject(t)
	added := decodeRecord(t, run(t, cfgPath, "add", "Person", "name=Ann", "--json"))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	out, err := execute(ctx, cfgPath, "watch", "Person", "--json")
	require.NoError(t, err, out)

	var events []dispatch.Event
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var e dispatch.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e), scanner.Text())
		events = append(events, e)
	}
	require.Len(t, events, 1)
	assert.Equal(t, dispatch.RecordAdded, events[0].Type)
	assert.Equal(t, added.Key, events[0].Key)
	assert.NotEmpty(t, events[0].WatcherHash)
}

func TestWatchRecordRejectsListRefinements(t *testing.T) {
	cfgPath := newProject(t)
	_, err := execute(context.Background(), cfgPath, "watch", "Person", "p1", "--recent", "5")
	assert.ErrorIs(t, err, ormerr.ErrNotAllowed)
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]interface{}
		wantErr bool
	}{
		{name: "string", args: []string{"name=Ann"}, want: map[string]interface{}{"name": "Ann"}},
		{name: "number", args: []string{"age=42"}, want: map[string]interface{}{"age": float64(42)}},
		{name: "json", args: []string{`tags=["a"]`, "ok=true"}, want: map[string]interface{}{"tags": []interface{}{"a"}, "ok": true}},
		{name: "value with equals", args: []string{"expr=a=b"}, want: map[string]interface{}{"expr": "a=b"}},
		{name: "empty value", args: []string{"note="}, want: map[string]interface{}{"note": ""}},
		{name: "missing equals", args: []string{"name"}, wantErr: true},
		{name: "missing property", args: []string{"=x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.args)
			if tt.wantErr {
				var usage usageError
				assert.ErrorAs(t, err, &usage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryBackendWarnsOnWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firemodel.yaml")
	content := "database:\n  backend: memory\ndispatch:\n  workers: 0\nmodels:\n  - name: Person\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	out := run(t, path, "add", "Person", "name=Ann")
	assert.Contains(t, out, "memory backend keeps records only while this command runs")

	_, err := execute(context.Background(), path, "get", "Person", "p1")
	assert.ErrorIs(t, err, ormerr.ErrNotFound)

	out = run(t, newProject(t), "add", "Person", "name=Ann")
	assert.NotContains(t, out, "memory backend")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	store, err := openStore(ctx, config.DatabaseConfig{Backend: config.BackendMemory}, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)

	mr := miniredis.RunT(t)
	store, err = openStore(ctx, config.DatabaseConfig{
		Backend: config.BackendRedis,
		Redis:   config.RedisConfig{Addr: mr.Addr(), Prefix: "test:"},
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &redisstore.Store{}, store)
	require.NoError(t, store.Close())

	_, err = openStore(ctx, config.DatabaseConfig{Backend: "mongo"}, logger)
	assert.Error(t, err)
}
