package query

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Row is one child of a queried location
type Row struct {
	Key   string
	Value interface{}
}

// Evaluate applies the query's ordering, bounds, where clause and limits
// to the children of snapshot. Snapshot is the value stored at the query
// path; anything other than a mapping or list has no children.
func Evaluate(snapshot interface{}, q *Query) []Row {
	rows := Children(snapshot)
	if len(rows) == 0 {
		return rows
	}

	orderBy := q.OrderBy()
	sortValue := func(r Row) interface{} {
		if orderBy == "" {
			return nil
		}
		return ChildValue(r.Value, orderBy)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if orderBy != "" {
			if c := Compare(sortValue(rows[i]), sortValue(rows[j])); c != 0 {
				return c < 0
			}
		}
		return CompareKeys(rows[i].Key, rows[j].Key) < 0
	})

	start, end := q.Bounds()
	op, whereValue := q.WhereClause()
	switch op {
	case OpEqual:
		start, end = whereValue, whereValue
	case OpGreaterThan:
		start = whereValue
	case OpLessThan:
		end = whereValue
	}

	filtered := rows[:0:0]
	for _, r := range rows {
		if start != nil && compareBound(orderBy, r, sortValue(r), start) < 0 {
			continue
		}
		if end != nil && compareBound(orderBy, r, sortValue(r), end) > 0 {
			continue
		}
		filtered = append(filtered, r)
	}

	first, last := q.Limits()
	if first > 0 && len(filtered) > first {
		filtered = filtered[:first]
	}
	if last > 0 && len(filtered) > last {
		filtered = filtered[len(filtered)-last:]
	}
	return filtered
}

// compareBound compares a row against a bound. Without a child ordering
// the bound applies to the key.
func compareBound(orderBy string, r Row, value, bound interface{}) int {
	if orderBy == "" {
		return CompareKeys(r.Key, toKey(bound))
	}
	return Compare(value, bound)
}

func toKey(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}

// Children returns the children of a mapping or list value in key order
func Children(snapshot interface{}) []Row {
	var rows []Row
	switch val := snapshot.(type) {
	case map[string]interface{}:
		rows = make([]Row, 0, len(val))
		for k, v := range val {
			if v == nil {
				continue
			}
			rows = append(rows, Row{Key: k, Value: v})
		}
	case []interface{}:
		rows = make([]Row, 0, len(val))
		for i, v := range val {
			if v == nil {
				continue
			}
			rows = append(rows, Row{Key: strconv.Itoa(i), Value: v})
		}
	default:
		return []Row{}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return CompareKeys(rows[i].Key, rows[j].Key) < 0
	})
	return rows
}

// ChildValue returns the value at a slash separated child path of v, or
// nil when any segment is missing
func ChildValue(v interface{}, path string) interface{} {
	current := v
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[seg]
	}
	return current
}

// rank orders value kinds: null, false, true, numbers, strings, objects
func rank(v interface{}) int {
	switch val := v.(type) {
	case nil:
		return 0
	case bool:
		if val {
			return 2
		}
		return 1
	case string:
		return 4
	default:
		if _, ok := ToFloat(v); ok {
			return 3
		}
		return 5
	}
}

// Compare orders two values the way the realtime database orders child
// values: null < false < true < numbers < strings < objects
func Compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 3:
		fa, _ := ToFloat(a)
		fb, _ := ToFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 4:
		return strings.Compare(a.(string), b.(string))
	case 5:
		return strings.Compare(toKey(a), toKey(b))
	}
	return 0
}

// CompareKeys orders keys: integer-like keys numerically first, then the
// rest lexicographically
func CompareKeys(a, b string) int {
	ia, errA := strconv.ParseInt(a, 10, 64)
	ib, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// ToFloat converts any Go numeric value to float64
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return math.NaN(), false
	}
}
