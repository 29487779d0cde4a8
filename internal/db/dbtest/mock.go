// Package dbtest provides test doubles for the database client
package dbtest

import (
	"context"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/query"
)

// MockClient is a mock implementation of db.Client. Unset funcs succeed
// with zero values.
type MockClient struct {
	GetFunc          func(ctx context.Context, path string) (interface{}, error)
	SetFunc          func(ctx context.Context, path string, value interface{}) error
	UpdateFunc       func(ctx context.Context, path string, values map[string]interface{}) error
	RemoveFunc       func(ctx context.Context, path string) error
	MultiPathSetFunc func(ctx context.Context, updates map[string]interface{}) error
	RunQueryFunc     func(ctx context.Context, q *query.Query) ([]map[string]interface{}, error)
	WatchFunc        func(ctx context.Context, q *query.Query, types []db.EventType, listener db.Listener) (db.Subscription, error)
	UnwatchFunc      func(sub db.Subscription) error
	UnwatchAllFunc   func() error
}

func (m *MockClient) Get(ctx context.Context, path string) (interface{}, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, path)
	}
	return nil, nil
}

func (m *MockClient) Set(ctx context.Context, path string, value interface{}) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, path, value)
	}
	return nil
}

func (m *MockClient) Update(ctx context.Context, path string, values map[string]interface{}) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, path, values)
	}
	return nil
}

func (m *MockClient) Remove(ctx context.Context, path string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, path)
	}
	return nil
}

func (m *MockClient) MultiPathSet(ctx context.Context, updates map[string]interface{}) error {
	if m.MultiPathSetFunc != nil {
		return m.MultiPathSetFunc(ctx, updates)
	}
	return nil
}

func (m *MockClient) RunQuery(ctx context.Context, q *query.Query) ([]map[string]interface{}, error) {
	if m.RunQueryFunc != nil {
		return m.RunQueryFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockClient) Watch(ctx context.Context, q *query.Query, types []db.EventType, listener db.Listener) (db.Subscription, error) {
	if m.WatchFunc != nil {
		return m.WatchFunc(ctx, q, types, listener)
	}
	return "sub", nil
}

func (m *MockClient) Unwatch(sub db.Subscription) error {
	if m.UnwatchFunc != nil {
		return m.UnwatchFunc(sub)
	}
	return nil
}

func (m *MockClient) UnwatchAll() error {
	if m.UnwatchAllFunc != nil {
		return m.UnwatchAllFunc()
	}
	return nil
}

var _ db.Client = (*MockClient)(nil)
