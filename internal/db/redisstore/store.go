// Package redisstore is a db.Store keeping every leaf of the value tree
// under its own Redis key
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/db"
)

// Config holds Redis store configuration
type Config struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to every stored path
	Prefix string
	// MaxRetries bounds optimistic transaction retries
	MaxRetries int
}

// DefaultConfig returns a default Redis store configuration
func DefaultConfig() Config {
	return Config{
		Addr:       "localhost:6379",
		Prefix:     "firemodel:",
		MaxRetries: 3,
	}
}

// Store implements db.Store on Redis
type Store struct {
	client     *redis.Client
	prefix     string
	maxRetries int
	logger     *zap.Logger
}

// New connects to Redis and verifies the connection
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, convertError(err)
	}

	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient creates a store over an existing client
func NewWithClient(client *redis.Client, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Store{
		client:     client,
		prefix:     cfg.Prefix,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

func (s *Store) key(path string) string {
	return s.prefix + path
}

// pattern matches every key stored below path
func (s *Store) pattern(path string) string {
	if path == "" {
		return escapeGlob(s.prefix) + "*"
	}
	return escapeGlob(s.prefix+path) + "/*"
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}

func (s *Store) scan(ctx context.Context, path string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.pattern(path), 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, convertError(err)
	}
	return keys, nil
}

// Read returns the value at path
func (s *Store) Read(ctx context.Context, path string) (interface{}, error) {
	if path != "" {
		raw, err := s.client.Get(ctx, s.key(path)).Bytes()
		switch {
		case err == nil:
			return decode(raw)
		case !errors.Is(err, redis.Nil):
			return nil, convertError(err)
		}
	}

	keys, err := s.scan(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, convertError(err)
	}

	leaves := make(map[string]interface{}, len(keys))
	for i, k := range keys {
		raw, ok := values[i].(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		v, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		leaves[strings.TrimPrefix(k, s.prefix)] = v
	}
	return db.Assemble(path, leaves), nil
}

// existing lists the stored leaf paths at or below path
func (s *Store) existing(ctx context.Context) func(path string) ([]string, error) {
	return func(path string) ([]string, error) {
		keys, err := s.scan(ctx, path)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(keys)+1)
		if path != "" {
			n, err := s.client.Exists(ctx, s.key(path)).Result()
			if err != nil {
				return nil, convertError(err)
			}
			if n > 0 {
				out = append(out, path)
			}
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, s.prefix))
		}
		return out, nil
	}
}

// Write applies writes in one MULTI/EXEC transaction guarded by WATCH on
// every touched key. Conflicting concurrent writes are retried.
func (s *Store) Write(ctx context.Context, writes []db.Write) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = s.write(ctx, writes)
		if !db.IsConflict(err) {
			return err
		}
		s.logger.Debug("retrying conflicting redis write", zap.Int("attempt", attempt+1))
	}
	return err
}

func (s *Store) write(ctx context.Context, writes []db.Write) error {
	plan, err := db.PlanWrites(writes, s.existing(ctx))
	if err != nil {
		return err
	}

	encoded := make(map[string]string, len(plan.Sets))
	watched := make([]string, 0, len(plan.Deletes)+len(plan.Sets))
	for _, leaf := range plan.Sets {
		data, err := json.Marshal(leaf.Value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", db.ErrInvalidValue, leaf.Path, err)
		}
		encoded[s.key(leaf.Path)] = string(data)
		watched = append(watched, s.key(leaf.Path))
	}
	deletes := make([]string, 0, len(plan.Deletes))
	for _, p := range plan.Deletes {
		deletes = append(deletes, s.key(p))
	}
	watched = append(watched, deletes...)
	if len(watched) == 0 {
		return nil
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(deletes) > 0 {
				pipe.Del(ctx, deletes...)
			}
			for k, v := range encoded {
				pipe.Set(ctx, k, v, 0)
			}
			return nil
		})
		return err
	}, watched...)
	return convertError(err)
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func decode(raw []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: stored leaf is not JSON: %v", db.ErrInvalidValue, err)
	}
	return v, nil
}

// convertError maps Redis errors to store errors
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %v", db.ErrConflict, err)
	}
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %v", db.ErrClosed, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return err
}
