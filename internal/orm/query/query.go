// Package query provides the serialized query descriptor used by lists,
// watchers and the database client
package query

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Operator represents the comparison of a where clause
type Operator int

const (
	// OpNone means no where clause is set
	OpNone Operator = iota
	// OpEqual matches values equal to the where value
	OpEqual
	// OpGreaterThan matches values from the where value upwards
	OpGreaterThan
	// OpLessThan matches values up to the where value
	OpLessThan
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	default:
		return ""
	}
}

// ParseOperator converts a string to an Operator
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "=", "==":
		return OpEqual, nil
	case ">", ">=":
		return OpGreaterThan, nil
	case "<", "<=":
		return OpLessThan, nil
	case "":
		return OpNone, nil
	default:
		return OpNone, fmt.Errorf("unknown comparison operator: %s", s)
	}
}

// Comparison pairs a where operator with its value
type Comparison struct {
	Operator Operator
	Value    interface{}
}

// Cmp builds a Comparison
func Cmp(op Operator, value interface{}) Comparison {
	return Comparison{Operator: op, Value: value}
}

// ParseWhere splits a where argument into operator and value. A Comparison
// or an [operator, value] pair selects the operator; any other argument is
// matched for equality.
func ParseWhere(arg interface{}) (Operator, interface{}) {
	switch v := arg.(type) {
	case Comparison:
		if v.Operator == OpNone {
			return OpEqual, v.Value
		}
		return v.Operator, v.Value
	case []interface{}:
		if len(v) == 2 {
			if s, ok := v[0].(string); ok {
				if op, err := ParseOperator(s); err == nil && op != OpNone {
					return op, v[1]
				}
			}
		}
	}
	return OpEqual, arg
}

// Descriptor is the serializable state of a Query
type Descriptor struct {
	Path          string      `json:"path" mapstructure:"path"`
	OrderByChild  string      `json:"orderByChild,omitempty" mapstructure:"orderByChild"`
	StartAt       interface{} `json:"startAt,omitempty" mapstructure:"startAt"`
	EndAt         interface{} `json:"endAt,omitempty" mapstructure:"endAt"`
	LimitToFirst  int         `json:"limitToFirst,omitempty" mapstructure:"limitToFirst"`
	LimitToLast   int         `json:"limitToLast,omitempty" mapstructure:"limitToLast"`
	WhereOperator string      `json:"whereOperator,omitempty" mapstructure:"whereOperator"`
	WhereValue    interface{} `json:"whereValue,omitempty" mapstructure:"whereValue"`
}

// Query is a fluent, serializable query against a database path. The
// refinement methods mutate the query and return it for chaining; use
// Clone to branch.
type Query struct {
	d Descriptor
}

// New creates a query for path
func New(path string) *Query {
	return &Query{d: Descriptor{Path: path}}
}

// FromDescriptor rebuilds a query from its serialized state
func FromDescriptor(d Descriptor) (*Query, error) {
	if _, err := ParseOperator(d.WhereOperator); err != nil {
		return nil, err
	}
	if d.LimitToFirst < 0 || d.LimitToLast < 0 {
		return nil, fmt.Errorf("query limits must not be negative")
	}
	return &Query{d: d}, nil
}

// SetPath sets the database path the query runs against
func (q *Query) SetPath(path string) *Query {
	q.d.Path = path
	return q
}

// OrderByChild orders results by the value of a child property
func (q *Query) OrderByChild(property string) *Query {
	q.d.OrderByChild = property
	return q
}

// StartAt sets the inclusive lower bound on the ordered value
func (q *Query) StartAt(value interface{}) *Query {
	q.d.StartAt = value
	return q
}

// EndAt sets the inclusive upper bound on the ordered value
func (q *Query) EndAt(value interface{}) *Query {
	q.d.EndAt = value
	return q
}

// LimitToFirst keeps the first n ordered results
func (q *Query) LimitToFirst(n int) *Query {
	q.d.LimitToFirst = n
	return q
}

// LimitToLast keeps the last n ordered results
func (q *Query) LimitToLast(n int) *Query {
	q.d.LimitToLast = n
	return q
}

// Where filters the ordered value with op
func (q *Query) Where(op Operator, value interface{}) *Query {
	q.d.WhereOperator = op.String()
	q.d.WhereValue = value
	return q
}

// EqualTo is shorthand for Where(OpEqual, value)
func (q *Query) EqualTo(value interface{}) *Query {
	return q.Where(OpEqual, value)
}

// Path returns the database path of the query
func (q *Query) Path() string { return q.d.Path }

// OrderBy returns the child property results are ordered by, or "" for key order
func (q *Query) OrderBy() string { return q.d.OrderByChild }

// Bounds returns the start and end bounds; nil means unbounded
func (q *Query) Bounds() (start, end interface{}) { return q.d.StartAt, q.d.EndAt }

// Limits returns the first and last limits; zero means unlimited
func (q *Query) Limits() (first, last int) { return q.d.LimitToFirst, q.d.LimitToLast }

// WhereClause returns the where operator and value
func (q *Query) WhereClause() (Operator, interface{}) {
	op, _ := ParseOperator(q.d.WhereOperator)
	return op, q.d.WhereValue
}

// Descriptor returns a copy of the serializable state
func (q *Query) Descriptor() Descriptor { return q.d }

// Clone returns an independent copy of the query
func (q *Query) Clone() *Query {
	return &Query{d: q.d}
}

// Identity returns the canonical JSON form of the query
func (q *Query) Identity() string {
	data, err := json.Marshal(q.d)
	if err != nil {
		// values that cannot be encoded still need a stable identity
		return fmt.Sprintf("%#v", q.d)
	}
	return string(data)
}

// HashCode returns a deterministic hash of the query state. Equal queries
// hash equally; different queries collide only with negligible probability.
func (q *Query) HashCode() uint64 {
	return xxhash.Sum64String(q.Identity())
}

// MarshalJSON implements json.Marshaler
func (q *Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.d)
}

// UnmarshalJSON implements json.Unmarshaler
func (q *Query) UnmarshalJSON(data []byte) error {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	parsed, err := FromDescriptor(d)
	if err != nil {
		return err
	}
	*q = *parsed
	return nil
}

// String returns a readable form of the query
func (q *Query) String() string {
	return "Query(" + q.Identity() + ")#" + strconv.FormatUint(q.HashCode(), 10)
}
