package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueKinds(t *testing.T) {
	assert.Equal(t, KindNull, Null().Kind())
	assert.Equal(t, KindString, String("hi").Kind())
	assert.Equal(t, KindNumber, Number(3.5).Kind())
	assert.Equal(t, KindBool, Bool(true).Kind())
	assert.Equal(t, KindList, List(String("a")).Kind())
	assert.Equal(t, KindRecord, Record(map[string]Value{"k": Number(1)}).Kind())
}

func TestValueAccessorsRejectWrongKind(t *testing.T) {
	v := String("renewal")
	_, ok := v.AsNumber()
	assert.False(t, ok)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "renewal", s)
}

func TestValueJSONRoundTrip(t *testing.T) {
	v := Record(map[string]Value{
		"account":   String("acme"),
		"arr":       Number(120000),
		"at_risk":   Bool(false),
		"contacts":  List(String("dana"), String("lee")),
		"lastTouch": Null(),
	})

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var got Value
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, v.Equal(got), "round-tripped value differs: %#v vs %#v", v, got)
}

func TestValueFromGo(t *testing.T) {
	raw := map[string]any{
		"plan":  "expansion",
		"seats": float64(40),
		"flags": []any{true, false},
	}
	v, err := FromGo(raw)
	require.NoError(t, err)

	assert.Equal(t, "expansion", v.Field("plan").ToGo())
	seats, ok := v.Field("seats").AsNumber()
	require.True(t, ok)
	assert.Equal(t, 40.0, seats)

	_, err = FromGo(struct{}{})
	assert.Error(t, err)
}

func TestValueCloneIsDeep(t *testing.T) {
	rec := map[string]Value{"owner": String("dana")}
	v := Record(rec)
	c := v.Clone()

	rec["owner"] = String("lee")
	got, _ := c.Field("owner").AsString()
	assert.Equal(t, "dana", got)
}

func TestMessageClone(t *testing.T) {
	m := NewAssistantMessage("intro", "Welcome back", fixedTime())
	m.Buttons = []string{"Yes", "No"}

	c := m.Clone()
	m.Buttons[0] = "Maybe"

	assert.Equal(t, "Yes", c.Buttons[0])
	assert.Equal(t, RoleAssistant, c.Role)
	assert.Equal(t, "intro", c.BranchID)
}
