package watch

import (
	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/schema"
	"github.com/nickmessing/firemodel/internal/orm/tracking"
)

// Context describes the watcher raw events belong to
type Context struct {
	Hash       string
	ModelName  string
	PluralName string
	DBPath     string
	LocalPath  string
}

// Transformer returns a function wrapping a DispatchFunc into a database
// listener that converts raw events into model events
func Transformer(c Context) func(dispatch.DispatchFunc) db.Listener {
	return func(fn dispatch.DispatchFunc) db.Listener {
		return func(e db.Event) {
			if out, ok := Transform(c, e); ok {
				fn(out)
			}
		}
	}
}

// Transform converts one raw database event. It reports false for event
// types it does not know.
func Transform(c Context, e db.Event) (dispatch.Event, bool) {
	out := dispatch.Event{
		ModelName:   c.ModelName,
		PluralName:  c.PluralName,
		DBPath:      c.DBPath,
		LocalPath:   c.LocalPath,
		Key:         e.Key,
		WatcherHash: c.Hash,
	}

	switch e.Type {
	case db.EventValue:
		out.Value = tracking.DeepCopyValue(e.Value)
		if e.Value == nil {
			out.Type = dispatch.RecordRemoved
		} else {
			out.Type = dispatch.RecordChanged
		}
		return out, true
	case db.EventChildAdded:
		out.Type = dispatch.RecordAdded
	case db.EventChildChanged:
		out.Type = dispatch.RecordChanged
	case db.EventChildMoved:
		out.Type = dispatch.RecordMoved
	case db.EventChildRemoved:
		out.Type = dispatch.RecordRemoved
	default:
		return dispatch.Event{}, false
	}

	out.DBPath = c.DBPath + "/" + e.Key
	out.LocalPath = c.LocalPath + "." + e.Key
	out.Value = childValue(e.Key, e.Value)
	return out, true
}

// childValue copies a child payload and gives mapping payloads their id
func childValue(key string, v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return tracking.DeepCopyValue(v)
	}
	out := tracking.DeepCopyMap(m)
	out[schema.FieldID] = key
	return out
}
