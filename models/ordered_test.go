package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestOrderedMapKeepsInsertionOrder(t *testing.T) {
	m := NewOrderedMap[string](3)
	m.Set("zeta", "1")
	m.Set("alpha", "2")
	m.Set("mid", "3")
	m.Set("zeta", "4")

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, m.Keys())
	v, ok := m.Get("zeta")
	assert.True(t, ok)
	assert.Equal(t, "4", v)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":"4","alpha":"2","mid":"3"}`, string(data))
	assert.Equal(t, `{"zeta":"4","alpha":"2","mid":"3"}`, string(data))
}

func TestOrderedMapJSONDecode(t *testing.T) {
	var m OrderedMap[OrderedMap[string]]
	require.NoError(t, json.Unmarshal([]byte(`{"b":{"y":"1","x":"2"},"a":{}}`), &m))

	assert.Equal(t, []string{"b", "a"}, m.Keys())
	inner, _ := m.Get("b")
	assert.Equal(t, []string{"y", "x"}, inner.Keys())
}

func TestOrderedMapBSONRoundTripKeepsOrder(t *testing.T) {
	type doc struct {
		Values OrderedMap[string] `bson:"values"`
	}
	in := doc{Values: NewOrderedMap[string](2)}
	in.Values.Set("second", "b")
	in.Values.Set("first", "a")

	raw, err := bson.Marshal(in)
	require.NoError(t, err)

	elems, err := bson.Raw(raw).Lookup("values").Document().Elements()
	require.NoError(t, err)
	require.Len(t, elems, 2)
	assert.Equal(t, "second", elems[0].Key())

	var out doc
	require.NoError(t, bson.Unmarshal(raw, &out))
	assert.Equal(t, []string{"second", "first"}, out.Values.Keys())
}

func TestEmptyOrderedMapEncodesAsObject(t *testing.T) {
	var m OrderedMap[string]
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}
