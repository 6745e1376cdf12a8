package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_EventIDTable(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	for _, name := range reg.Events() {
		ev, ok := reg.Event(name)
		require.True(t, ok)
		got, ok := reg.EventName(ev.ID)
		require.True(t, ok)
		assert.Equal(t, name, got)
	}

	name, ok := reg.EventName(2)
	require.True(t, ok)
	assert.Equal(t, "listed", name)

	_, ok = reg.EventName(9999)
	assert.False(t, ok)

	assert.Equal(t, "error", reg.Events()[0])
}

func TestDefault_PlaceOrderSchema(t *testing.T) {
	reg := MustDefault()
	m, ok := reg.Method("placeOrder")
	require.True(t, ok)
	assert.Equal(t, KindHexString, m["sellToken"].Kind)
	require.NotNil(t, m["sellToken"].Length)
	assert.Equal(t, 42, *m["sellToken"].Length)
	assert.True(t, m["signature"].Optional)
}

func TestLoad_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		methods string
		events  string
		reason  string
	}{
		{
			name:    "malformed methods",
			methods: `{`,
			events:  `{}`,
			reason:  "schema config methods",
		},
		{
			name:    "missing id",
			methods: `{}`,
			events:  `{"events":{"x":{"type":"string"}}}`,
			reason:  "missing id",
		},
		{
			name:    "duplicate id",
			methods: `{}`,
			events:  `{"events":{"a":{"id":1,"type":"string"},"b":{"id":1,"type":"string"}}}`,
			reason:  "already used",
		},
		{
			name:    "dangling struct",
			methods: `{}`,
			events:  `{"events":{"a":{"id":1,"type":"struct","struct":"ghost"}}}`,
			reason:  "undefined struct",
		},
		{
			name:    "unnamed tuple field",
			methods: `{}`,
			events:  `{"events":{"a":{"id":1,"type":"array","fields":[{"type":"uint"}]}}}`,
			reason:  "has no name",
		},
		{
			name:    "missing type",
			methods: `{"m":{"p":{"optional":true}}}`,
			events:  `{}`,
			reason:  "missing type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.methods), []byte(tt.events))
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestLoad_SelfReferencingStruct(t *testing.T) {
	reg, err := Load([]byte(`{}`), []byte(`{
		"events": {"tree": {"id": 1, "type": "struct", "struct": "node"}},
		"structs": {"node": {"type": "object", "keys": {
			"value":    {"type": "uint"},
			"children": {"type": "array", "optional": true, "elements": {"type": "struct", "struct": "node"}}
		}}}
	}`))
	require.NoError(t, err)

	ev, _ := reg.Event("tree")
	out, err := NewDecoder(reg.Structs(), 0).Decode(ev.Node, map[string]any{
		"value":    1,
		"children": []any{map[string]any{"value": 2}},
	})
	require.NoError(t, err)
	children := out.(map[string]any)["children"].([]any)
	assert.Equal(t, 2, children[0].(map[string]any)["value"])
}

func TestNode_UnknownTagKeepsRawName(t *testing.T) {
	reg, err := Load([]byte(`{"m":{"p":{"type":"matrix"}}}`), []byte(`{}`))
	require.NoError(t, err)
	m, _ := reg.Method("m")
	assert.Equal(t, KindUnknown, m["p"].Kind)
	assert.Equal(t, "matrix", m["p"].Type)
}
