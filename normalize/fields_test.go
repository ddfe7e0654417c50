package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func boolPtr(b bool) *bool { return &b }

func TestSplitAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		key  string
		want []string
	}{
		{
			name: "case-insensitive dedupe drops key",
			raw:  "Python | python | Java | Python",
			key:  "Python",
			want: []string{"Java"},
		},
		{
			name: "first spelling wins",
			raw:  "JS|javascript|Js|ECMAScript",
			key:  "JavaScript",
			want: []string{"JS", "ECMAScript"},
		},
		{
			name: "only key and blanks is absent",
			raw:  " | python |  ",
			key:  "Python",
			want: nil,
		},
		{
			name: "empty text is absent",
			raw:  "",
			key:  "Go",
			want: nil,
		},
		{
			name: "list input",
			raw:  []any{"golang", "Go", "GoLang", nil},
			key:  "Go",
			want: []string{"golang"},
		},
		{
			name: "non-text value",
			raw:  3.5,
			key:  "Go",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitAliases(tt.raw, "|", tt.key))
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		raw  any
		want *int
	}{
		{"1,234", intPtr(1234)},
		{"50+", intPtr(50)},
		{"500+ connections", intPtr(500)},
		{" 12 345 ", intPtr(12345)},
		{"abc", nil},
		{"", nil},
		{"+", nil},
		{float64(42), intPtr(42)},
		{math.NaN(), nil},
		{math.Inf(1), nil},
		{json.Number("77"), intPtr(77)},
		{[]any{1}, nil},
		{nil, nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCount(tt.raw), "ParseCount(%#v)", tt.raw)
	}
}

func TestParseHours(t *testing.T) {
	assert.Equal(t, intPtr(6), ParseHours("5-7 hours per week"))
	assert.Equal(t, intPtr(6), ParseHours("5 – 7 hours"))
	assert.Equal(t, intPtr(12), ParseHours("about 12 hours"))
	assert.Equal(t, intPtr(3), ParseHours("3"))
	assert.Nil(t, ParseHours("self-paced"))
}

func TestParseYesNo(t *testing.T) {
	for _, s := range []string{"yes", "Y", "TRUE", "1", " yes "} {
		assert.Equal(t, boolPtr(true), ParseYesNo(s), s)
	}
	for _, s := range []string{"no", "N", "false", "0"} {
		assert.Equal(t, boolPtr(false), ParseYesNo(s), s)
	}
	for _, v := range []any{"maybe", "", nil, float64(2), []any{}} {
		assert.Nil(t, ParseYesNo(v), "%#v", v)
	}
	assert.Equal(t, boolPtr(true), ParseYesNo(true))
	assert.Equal(t, boolPtr(false), ParseYesNo(float64(0)))
}

func TestText(t *testing.T) {
	assert.Equal(t, "hello", Text("  hello "))
	assert.Equal(t, "3", Text(float64(3)))
	assert.Equal(t, "2.5", Text(2.5))
	assert.Equal(t, "", Text(math.NaN()))
	assert.Equal(t, "", Text(map[string]any{"a": 1}))
	assert.Equal(t, "true", Text(true))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "héllo", Truncate("héllo wörld", 5))
	assert.Equal(t, 600, len([]rune(Truncate(strings.Repeat("ß", 700), 600))))
}

func TestSanitize(t *testing.T) {
	raw := map[string]any{
		"score": math.NaN(),
		"ok":    1.5,
		"nested": []any{
			map[string]any{"deep": math.Inf(-1), "name": "x"},
			float32(math.Inf(1)),
			[]float64{1, math.NaN()},
		},
	}

	clean := Sanitize(raw).(map[string]any)
	assert.Nil(t, clean["score"])
	assert.Equal(t, 1.5, clean["ok"])

	nested := clean["nested"].([]any)
	assert.Nil(t, nested[0].(map[string]any)["deep"])
	assert.Equal(t, "x", nested[0].(map[string]any)["name"])
	assert.Nil(t, nested[1])
	assert.Equal(t, []any{float64(1), nil}, nested[2])

	// input is left untouched
	assert.True(t, math.IsNaN(raw["score"].(float64)))
}

func TestSanitize_TypedContainers(t *testing.T) {
	clean := Sanitize(map[string]any{
		"entries": []map[string]any{{"title": "x", "score": math.NaN()}},
		"weights": []float32{0.5, float32(math.Inf(1))},
		"ratios":  map[string]float64{"a": 1, "b": math.Inf(-1)},
		"counts":  []int{1, 2},
	}).(map[string]any)

	assert.Equal(t, []any{map[string]any{"title": "x", "score": nil}}, clean["entries"])
	assert.Equal(t, []any{float32(0.5), nil}, clean["weights"])
	assert.Equal(t, map[string]any{"a": float64(1), "b": nil}, clean["ratios"])
	assert.Equal(t, []any{1, 2}, clean["counts"])

	data := CompactJSON(map[string]any{"entries": []map[string]any{{"title": "x", "score": math.NaN()}}})
	require.NotNil(t, data, "a typed container keeps its finite entries")
	assert.JSONEq(t, `{"entries":[{"title":"x","score":null}]}`, string(data))
}

func TestCompactJSON(t *testing.T) {
	t.Run("non-finite values become null", func(t *testing.T) {
		data := CompactJSON(map[string]any{"a": math.NaN(), "b": []any{math.Inf(1), 2.0}})
		require.NotNil(t, data)
		assert.True(t, json.Valid(data))
		assert.NotContains(t, string(data), "NaN")
		assert.NotContains(t, string(data), "Inf")
		assert.JSONEq(t, `{"a":null,"b":[null,2]}`, string(data))
	})

	t.Run("serialization failure degrades to absent", func(t *testing.T) {
		assert.Nil(t, CompactJSON(map[string]any{"fn": func() {}}))
		assert.Nil(t, CompactJSON(map[any]any{1: "x"}))
	})

	t.Run("nil is absent", func(t *testing.T) {
		assert.Nil(t, CompactJSON(nil))
		assert.Nil(t, CompactJSON(math.NaN()))
	})
}

func TestNested(t *testing.T) {
	decoded := Nested(`[{"title":"x","years":3}]`)
	list, ok := decoded.([]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("3"), list[0].(map[string]any)["years"])

	assert.Equal(t, "plain text", Nested("plain text"))
	assert.Equal(t, "[broken", Nested("[broken"))
	assert.Equal(t, 4.0, Nested(4.0))
}
