package dispatch

import "fmt"

// Kind identifies a model event
type Kind int

const (
	// RecordAdded is emitted when a record appears under a watched list or is saved
	RecordAdded Kind = iota
	// RecordChanged is emitted when a record's remote value changed
	RecordChanged
	// RecordRemoved is emitted when a record was deleted
	RecordRemoved
	// RecordMoved is emitted when a record changed position in an ordered list
	RecordMoved
	// RecordList is emitted when a list finder loaded its results
	RecordList
	// RecordChangedLocally is emitted before a local change is written remotely
	RecordChangedLocally
)

// Kinds returns every model event kind
func Kinds() []Kind {
	return []Kind{RecordAdded, RecordChanged, RecordRemoved, RecordMoved, RecordList, RecordChangedLocally}
}

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case RecordAdded:
		return "RECORD_ADDED"
	case RecordChanged:
		return "RECORD_CHANGED"
	case RecordRemoved:
		return "RECORD_REMOVED"
	case RecordMoved:
		return "RECORD_MOVED"
	case RecordList:
		return "RECORD_LIST"
	case RecordChangedLocally:
		return "RECORD_CHANGED_LOCALLY"
	default:
		return "UNKNOWN"
	}
}

// ParseKind converts a wire name to a Kind
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind: %s", s)
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
