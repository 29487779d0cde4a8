package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func people() map[string]interface{} {
	return map[string]interface{}{
		"a": map[string]interface{}{"name": "Ann", "age": 30, "lastUpdated": 300, "createdAt": 100},
		"b": map[string]interface{}{"name": "Bob", "age": 18, "lastUpdated": 100, "createdAt": 200},
		"c": map[string]interface{}{"name": "Cat", "age": 45, "lastUpdated": 200, "createdAt": 300},
		"d": map[string]interface{}{"name": "Dan", "lastUpdated": 400, "createdAt": 400},
	}
}

func keys(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		query *Query
		want  []string
	}{
		{name: "key order", query: New("people"), want: []string{"a", "b", "c", "d"}},
		{name: "order by child", query: New("people").OrderByChild("lastUpdated"), want: []string{"b", "c", "a", "d"}},
		{name: "missing child sorts first", query: New("people").OrderByChild("age"), want: []string{"d", "b", "a", "c"}},
		{name: "limit to first", query: New("people").OrderByChild("createdAt").LimitToFirst(2), want: []string{"a", "b"}},
		{name: "limit to last", query: New("people").OrderByChild("createdAt").LimitToLast(2), want: []string{"c", "d"}},
		{name: "start at inclusive", query: New("people").OrderByChild("lastUpdated").StartAt(200), want: []string{"c", "a", "d"}},
		{name: "end at inclusive", query: New("people").OrderByChild("lastUpdated").EndAt(200), want: []string{"b", "c"}},
		{name: "between", query: New("people").OrderByChild("createdAt").StartAt(200).EndAt(300), want: []string{"b", "c"}},
		{name: "where equal", query: New("people").OrderByChild("age").Where(OpEqual, 30), want: []string{"a"}},
		{name: "where greater", query: New("people").OrderByChild("age").Where(OpGreaterThan, 30), want: []string{"a", "c"}},
		{name: "where less", query: New("people").OrderByChild("age").Where(OpLessThan, 30), want: []string{"d", "b", "a"}},
		{name: "where equal string", query: New("people").OrderByChild("name").EqualTo("Bob"), want: []string{"b"}},
		{name: "key bounds", query: New("people").StartAt("b").EndAt("c"), want: []string{"b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keys(Evaluate(people(), tt.query)))
		})
	}
}

func TestEvaluateNonCollection(t *testing.T) {
	assert.Empty(t, Evaluate("scalar", New("x")))
	assert.Empty(t, Evaluate(nil, New("x")))
}

func TestEvaluateList(t *testing.T) {
	rows := Evaluate([]interface{}{"x", nil, "z"}, New("x"))
	assert.Equal(t, []string{"0", "2"}, keys(rows))
}

func TestCompare(t *testing.T) {
	ordered := []interface{}{nil, false, true, -1, 2.5, 10, "10", "a", map[string]interface{}{"x": 1}}
	for i := 0; i < len(ordered)-1; i++ {
		assert.Equal(t, -1, Compare(ordered[i], ordered[i+1]), "%v < %v", ordered[i], ordered[i+1])
		assert.Equal(t, 1, Compare(ordered[i+1], ordered[i]), "%v > %v", ordered[i+1], ordered[i])
	}
	assert.Equal(t, 0, Compare(int64(3), float64(3)))
}

func TestCompareKeys(t *testing.T) {
	assert.Equal(t, -1, CompareKeys("2", "10"))
	assert.Equal(t, -1, CompareKeys("10", "a"))
	assert.Equal(t, 1, CompareKeys("b", "a"))
	assert.Equal(t, 0, CompareKeys("a", "a"))
}

func TestChildValue(t *testing.T) {
	v := map[string]interface{}{"address": map[string]interface{}{"city": "Oslo"}}
	assert.Equal(t, "Oslo", ChildValue(v, "address/city"))
	assert.Nil(t, ChildValue(v, "address/zip"))
	assert.Nil(t, ChildValue("scalar", "x"))
}
