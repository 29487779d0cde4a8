package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/nickmessing/firemodel/internal/orm/schema"
)

// FileName is the configuration file name without extension
const FileName = "firemodel"

// ErrInvalidConfig is returned when the configuration file can not be
// read or fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Supported database backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config represents the firemodel configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Models   []ModelConfig  `mapstructure:"models"`
}

// DatabaseConfig selects and configures the store behind the database client
type DatabaseConfig struct {
	Backend string      `mapstructure:"backend"`
	URL     string      `mapstructure:"url"`
	Table   string      `mapstructure:"table"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig represents the redis backend settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// AuditConfig represents audit log settings
type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// DispatchConfig represents event dispatch settings
type DispatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// RelayConfig represents the websocket relay settings
type RelayConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ModelConfig declares a model in the configuration file
type ModelConfig struct {
	Name          string               `mapstructure:"name"`
	Plural        string               `mapstructure:"plural"`
	DBOffset      string               `mapstructure:"db_offset"`
	LocalOffset   string               `mapstructure:"local_offset"`
	LocalPostfix  string               `mapstructure:"local_postfix"`
	Audit         bool                 `mapstructure:"audit"`
	Properties    []PropertyConfig     `mapstructure:"properties"`
	Relationships []RelationshipConfig `mapstructure:"relationships"`
	Indexes       []IndexConfig        `mapstructure:"indexes"`
}

// PropertyConfig declares a property
type PropertyConfig struct {
	Name    string   `mapstructure:"name"`
	Type    string   `mapstructure:"type"`
	Length  int      `mapstructure:"length"`
	Min     *float64 `mapstructure:"min"`
	Max     *float64 `mapstructure:"max"`
	PushKey bool     `mapstructure:"push_key"`
	Mock    string   `mapstructure:"mock"`
	Desc    string   `mapstructure:"desc"`
}

// RelationshipConfig declares a relationship
type RelationshipConfig struct {
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"`
	Model   string `mapstructure:"model"`
	Inverse string `mapstructure:"inverse"`
}

// IndexConfig declares an index
type IndexConfig struct {
	Name   string `mapstructure:"name"`
	Unique bool   `mapstructure:"unique"`
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("database.backend", BackendMemory)
	v.SetDefault("database.url", "")
	v.SetDefault("database.table", "firemodel_nodes")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.redis.prefix", "firemodel:")
	v.SetDefault("audit.path", "auditing")
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("relay.addr", "localhost:8787")
	v.SetDefault("relay.allowed_origins", []string{"*"})

	// FIREMODEL_DATABASE_URL overrides database.url
	v.SetEnvPrefix("FIREMODEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load loads firemodel.yaml (or .yml) from the current directory. A missing
// file yields the defaults.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads the configuration from path, or searches the current
// directory when path is empty
func LoadFile(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config file: %w", ErrInvalidConfig, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", ErrInvalidConfig, err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &config, nil
}

// Save writes cfg as YAML to path
func Save(path string, cfg *Config) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	v := viper.New()
	v.Set("database.backend", cfg.Database.Backend)
	v.Set("database.url", cfg.Database.URL)
	v.Set("database.table", cfg.Database.Table)
	v.Set("database.redis.addr", cfg.Database.Redis.Addr)
	v.Set("database.redis.password", cfg.Database.Redis.Password)
	v.Set("database.redis.db", cfg.Database.Redis.DB)
	v.Set("database.redis.prefix", cfg.Database.Redis.Prefix)
	v.Set("audit.path", cfg.Audit.Path)
	v.Set("dispatch.workers", cfg.Dispatch.Workers)
	v.Set("relay.addr", cfg.Relay.Addr)
	if len(cfg.Relay.AllowedOrigins) > 0 {
		v.Set("relay.allowed_origins", cfg.Relay.AllowedOrigins)
	}
	if len(cfg.Models) > 0 {
		v.Set("models", modelMaps(cfg.Models))
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func modelMaps(models []ModelConfig) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(models))
	for _, m := range models {
		entry := map[string]interface{}{"name": m.Name}
		if m.Plural != "" {
			entry["plural"] = m.Plural
		}
		if m.DBOffset != "" {
			entry["db_offset"] = m.DBOffset
		}
		if m.LocalOffset != "" {
			entry["local_offset"] = m.LocalOffset
		}
		if m.LocalPostfix != "" {
			entry["local_postfix"] = m.LocalPostfix
		}
		if m.Audit {
			entry["audit"] = true
		}

		props := make([]map[string]interface{}, 0, len(m.Properties))
		for _, p := range m.Properties {
			prop := map[string]interface{}{"name": p.Name, "type": p.Type}
			if p.Length > 0 {
				prop["length"] = p.Length
			}
			if p.Min != nil {
				prop["min"] = *p.Min
			}
			if p.Max != nil {
				prop["max"] = *p.Max
			}
			if p.PushKey {
				prop["push_key"] = true
			}
			if p.Mock != "" {
				prop["mock"] = p.Mock
			}
			if p.Desc != "" {
				prop["desc"] = p.Desc
			}
			props = append(props, prop)
		}
		if len(props) > 0 {
			entry["properties"] = props
		}

		rels := make([]map[string]interface{}, 0, len(m.Relationships))
		for _, r := range m.Relationships {
			rel := map[string]interface{}{"name": r.Name, "type": r.Type, "model": r.Model}
			if r.Inverse != "" {
				rel["inverse"] = r.Inverse
			}
			rels = append(rels, rel)
		}
		if len(rels) > 0 {
			entry["relationships"] = rels
		}

		indexes := make([]map[string]interface{}, 0, len(m.Indexes))
		for _, idx := range m.Indexes {
			indexes = append(indexes, map[string]interface{}{"name": idx.Name, "unique": idx.Unique})
		}
		if len(indexes) > 0 {
			entry["indexes"] = indexes
		}

		out = append(out, entry)
	}
	return out
}

// Builders converts the model declarations into schema builders. Every
// invalid declaration is reported.
func (c *Config) Builders() ([]*schema.ModelBuilder, error) {
	var errs []error
	builders := make([]*schema.ModelBuilder, 0, len(c.Models))

	for _, m := range c.Models {
		b := schema.NewModel(m.Name).
			DBOffset(m.DBOffset).
			LocalOffset(m.LocalOffset).
			LocalPostfix(m.LocalPostfix).
			Plural(m.Plural)
		if m.Audit {
			b.Audit()
		}

		for _, p := range m.Properties {
			t, err := schema.ParsePrimitiveType(p.Type)
			if err != nil {
				errs = append(errs, fmt.Errorf("model %s, property %s: %w", m.Name, p.Name, err))
				continue
			}
			opts := propertyOptions(p)
			if p.PushKey {
				if t != schema.TypeAny && t != schema.TypeObject {
					errs = append(errs, fmt.Errorf("model %s, property %s: push keys must be objects, got %s", m.Name, p.Name, t))
					continue
				}
				b.PushKey(p.Name, opts...)
				continue
			}
			b.Property(p.Name, t, opts...)
		}

		for _, r := range m.Relationships {
			rt, err := schema.ParseRelationType(r.Type)
			if err != nil {
				errs = append(errs, fmt.Errorf("model %s, relationship %s: %w", m.Name, r.Name, err))
				continue
			}
			if rt == schema.RelationHasMany {
				b.HasMany(r.Name, r.Model, r.Inverse)
			} else {
				b.BelongsTo(r.Name, r.Model, r.Inverse)
			}
		}

		for _, idx := range m.Indexes {
			if idx.Unique {
				b.UniqueIndex(idx.Name)
			} else {
				b.Index(idx.Name)
			}
		}

		builders = append(builders, b)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return builders, nil
}

func propertyOptions(p PropertyConfig) []schema.PropertyOption {
	var opts []schema.PropertyOption
	if p.Length > 0 {
		opts = append(opts, schema.Length(p.Length))
	}
	if p.Min != nil {
		opts = append(opts, schema.Min(*p.Min))
	}
	if p.Max != nil {
		opts = append(opts, schema.Max(*p.Max))
	}
	if p.Mock != "" {
		opts = append(opts, schema.Mock(p.Mock))
	}
	if p.Desc != "" {
		opts = append(opts, schema.Desc(p.Desc))
	}
	return opts
}

// InProject checks if the current directory holds a firemodel config file
func InProject() bool {
	_, err := FindFile(".")
	return err == nil
}

// FindFile returns the config file inside dir
func FindFile(dir string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		candidate := filepath.Join(dir, FileName+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no %s.yaml in %s", FileName, dir)
}

// GetProjectRoot walks up from the working directory to the first
// directory holding a firemodel config file
func GetProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := FindFile(dir); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a firemodel project (no %s.yaml found)", FileName)
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Database.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres, BackendSQLite:
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for the %s backend", cfg.Database.Backend)
		}
	default:
		return fmt.Errorf("database.backend must be one of memory, redis, postgres or sqlite, got: %q", cfg.Database.Backend)
	}

	if cfg.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch.workers must not be negative, got: %d", cfg.Dispatch.Workers)
	}
	if strings.Contains(cfg.Audit.Path, ".") {
		return fmt.Errorf("audit.path must be a database path, got: %s", cfg.Audit.Path)
	}

	seen := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		if m.Name == "" {
			return fmt.Errorf("models: every model needs a name")
		}
		if seen[m.Name] {
			return fmt.Errorf("models: %s is declared twice", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}
