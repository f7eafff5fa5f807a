package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type replacer map[string]string

func (r replacer) Deanonymize(s string) string {
	for k, v := range r {
		s = strings.ReplaceAll(s, k, v)
	}
	return s
}

type panicky struct{}

func (panicky) Deanonymize(string) string { panic("translator broke") }

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Kind
		wantErr bool
	}{
		{"empty", "", KindMap, false},
		{"whitespace", "  \n", KindMap, false},
		{"object", `{"a":1}`, KindMap, false},
		{"array", `[1]`, 0, true},
		{"string", `"x"`, 0, true},
		{"garbage", `{`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseArguments(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Kind())
		})
	}
}

func TestValue_LargeNumbersSurvive(t *testing.T) {
	v, err := ParseArguments(`{"id":12345678901234567890,"ratio":0.1}`)
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":12345678901234567890,"ratio":0.1}`, string(out))
}

func TestDeanonymize_WalksNestedValues(t *testing.T) {
	v, err := ParseArguments(`{
		"to": "[EMAIL_1]",
		"rooms": ["[ROOM_1]", {"name": "[ROOM_2]"}],
		"count": 2,
		"on": true,
		"note": null
	}`)
	require.NoError(t, err)

	got := Deanonymize(v, replacer{"[EMAIL_1]": "a@b.com", "[ROOM_1]": "Küche", "[ROOM_2]": "Bad"})

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"to":"a@b.com","rooms":["Küche",{"name":"Bad"}],"count":2,"on":true,"note":null}`, string(out))

	to, _ := v.Field("to")
	s, ok := to.Str()
	assert.True(t, ok)
	assert.Equal(t, "[EMAIL_1]", s, "input must not be modified")
}

func TestDeanonymize_PanickingTranslatorKeepsLeaf(t *testing.T) {
	v := Map(map[string]Value{"to": String("[EMAIL_1]")})
	got := Deanonymize(v, panicky{})

	to, ok := got.Field("to")
	require.True(t, ok)
	s, _ := to.Str()
	assert.Equal(t, "[EMAIL_1]", s)
}

func TestFromAny(t *testing.T) {
	v := FromAny(map[string]any{
		"s":  "x",
		"i":  7,
		"f":  1.5,
		"l":  []string{"a", "b"},
		"ch": make(chan int),
	})
	assert.Equal(t, []string{"ch", "f", "i", "l", "s"}, v.Keys())

	ch, _ := v.Field("ch")
	assert.Equal(t, KindOpaque, ch.Kind())
	l, _ := v.Field("l")
	assert.Len(t, l.Items(), 2)
	i, _ := v.Field("i")
	assert.Equal(t, json.Number("7"), i.Any())
	assert.Equal(t, "number", i.Kind().String())
}
