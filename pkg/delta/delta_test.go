package delta

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderMergesAdjacentRuns(t *testing.T) {
	d := New().Insert("He", nil).Insert("llo", nil)
	assert.Equal(t, Delta{{Insert: "Hello"}}, d)

	d = New().Delete(2).Delete(3)
	assert.Equal(t, Delta{{Delete: 5}}, d)

	d = New().Retain(1, nil).Retain(2, nil)
	assert.Equal(t, Delta{{Retain: 3}}, d)
}

func TestBuilderKeepsDistinctAttributeRuns(t *testing.T) {
	d := New().Insert("a", Attributes{"bold": true}).Insert("b", nil)
	require.Len(t, d, 2)
	assert.Equal(t, Attributes{"bold": true}, d[0].Attributes)
	assert.Nil(t, d[1].Attributes)
}

func TestBuilderOrdersInsertBeforeDelete(t *testing.T) {
	d := New().Delete(2).Insert("a", nil)
	assert.Equal(t, Delta{{Insert: "a"}, {Delete: 2}}, d)

	d = New().Retain(1, nil).Delete(2).Insert("a", nil)
	assert.Equal(t, Delta{{Retain: 1}, {Insert: "a"}, {Delete: 2}}, d)
}

func TestBuilderDropsZeroLengthOps(t *testing.T) {
	d := New().Insert("", nil).Retain(0, nil).Delete(0).Insert("x", nil)
	assert.Equal(t, Delta{{Insert: "x"}}, d)
}

func TestLengthCountsCodePoints(t *testing.T) {
	assert.Equal(t, 5, New().Insert("héllo", nil).Length())
	assert.Equal(t, 3, New().Insert("日本語", nil).Length())
	assert.Equal(t, 1, New().InsertEmbed(map[string]interface{}{"image": "u"}, nil).Length())
	assert.Equal(t, 7, New().Retain(4, nil).Delete(3).Length())
}

func TestNormalize(t *testing.T) {
	raw := Delta{{Insert: "He"}, {Insert: "llo"}, {Retain: 0}, {Retain: 3}}
	assert.Equal(t, Delta{{Insert: "Hello"}}, Normalize(raw))

	// A trailing attribute-carrying retain is significant and survives.
	raw = Delta{{Retain: 2, Attributes: Attributes{"bold": true}}}
	assert.Equal(t, raw, Normalize(raw))
}

func TestEqualsIgnoresRepresentation(t *testing.T) {
	a := Delta{{Insert: "He"}, {Insert: "llo"}, {Retain: 4}}
	b := Delta{{Insert: "Hello"}}
	assert.True(t, Equals(a, b))
	assert.True(t, Equals(New(), nil))
	assert.False(t, Equals(b, New().Insert("Hellp", nil)))
	assert.False(t, Equals(b, New().Insert("Hello", Attributes{"bold": true})))
}

func TestSlice(t *testing.T) {
	content := New().Insert("Hello", Attributes{"bold": true}).Insert(" world", nil)
	assert.True(t, Equals(New().Insert("lo", Attributes{"bold": true}).Insert(" wo", nil), Slice(content, 3, 8)))
	assert.True(t, Equals(New().Insert("本", nil), Slice(New().Insert("日本語", nil), 1, 2)))
	assert.True(t, Equals(New(), Slice(content, 4, 4)))
}

func TestValidate(t *testing.T) {
	valid := Delta{
		{Retain: 2, Attributes: Attributes{"italic": true}},
		{Insert: "hi"},
		{Insert: map[string]interface{}{"image": "https://example.com/a.png"}},
		{Delete: 3},
	}
	require.NoError(t, valid.Validate())

	cases := map[string]Delta{
		"negative retain":    {{Retain: -1}},
		"negative delete":    {{Delete: -2}},
		"mixed kinds":        {{Insert: "a", Retain: 1}},
		"attrs on delete":    {{Delete: 1, Attributes: Attributes{"bold": true}}},
		"non-object insert":  {{Insert: 42}},
		"empty embed insert": {{Insert: map[string]interface{}{}}},
	}
	for name, d := range cases {
		err := d.Validate()
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestWireFormat(t *testing.T) {
	var d Delta
	require.NoError(t, json.Unmarshal([]byte(`[{"retain":1},{"insert":"B","attributes":{"bold":true}}]`), &d))
	assert.True(t, Equals(New().Retain(1, nil).Insert("B", Attributes{"bold": true}), d))

	out, err := json.Marshal(New().Insert("Hello", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"insert":"Hello"}]`, string(out))
}
