package dispatch

import "github.com/nickmessing/firemodel/internal/orm/query"

// Event is a model-aware change notification handed to the state layer
type Event struct {
	Type        Kind                     `json:"type"`
	ModelName   string                   `json:"modelName"`
	PluralName  string                   `json:"pluralName"`
	DBPath      string                   `json:"dbPath"`
	LocalPath   string                   `json:"localPath"`
	Key         string                   `json:"key,omitempty"`
	Value       interface{}              `json:"value,omitempty"`
	Paths       []string                 `json:"paths,omitempty"`
	Records     []map[string]interface{} `json:"records,omitempty"`
	Query       *query.Descriptor        `json:"query,omitempty"`
	WatcherHash string                   `json:"watcherHash,omitempty"`
}

// DispatchFunc receives model events
type DispatchFunc func(Event)

// Discard is a DispatchFunc that drops every event
func Discard(Event) {}

// Copy returns an event that shares no mutable state with e
func (e Event) Copy() Event {
	out := e
	out.Value = deepCopyValue(e.Value)
	if e.Paths != nil {
		out.Paths = append([]string(nil), e.Paths...)
	}
	if e.Records != nil {
		out.Records = make([]map[string]interface{}, len(e.Records))
		for i, r := range e.Records {
			out.Records[i] = deepCopyRecord(r)
		}
	}
	if e.Query != nil {
		d := *e.Query
		out.Query = &d
	}
	return out
}

// deepCopyRecord creates a deep copy of a record map
func deepCopyRecord(record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return deepCopyRecord(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
