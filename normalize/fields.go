package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/vectorload/core"
)

// Text returns a scalar value as trimmed text. Lists, mappings, nil and
// non-finite numbers yield "".
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// OptionalText returns a pointer to the trimmed text, or nil when blank.
func OptionalText(v any) *string {
	s := Text(v)
	if s == "" {
		return nil
	}
	return &s
}

// First returns the value of the first key present with a non-blank value.
func First(raw core.RawRecord, keys ...string) any {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// SplitAliases splits alias-like text on delim, trims entries, and drops
// empties and entries equal to key. Duplicates are removed case-insensitively
// keeping the first spelling seen. A list value is treated as already split.
// An empty result is nil.
func SplitAliases(v any, delim, key string) []string {
	var parts []string
	switch x := v.(type) {
	case string:
		parts = strings.Split(x, delim)
	case []string:
		parts = x
	case []any:
		parts = make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, Text(item))
		}
	default:
		return nil
	}

	var out []string
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || strings.EqualFold(p, key) {
			continue
		}
		lower := strings.ToLower(p)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ParseCount parses numeric-looking values such as "1,234" or "50+" into an
// integer. Thousands separators are stripped and anything after the leading
// digits is ignored. Unparsable values yield nil.
func ParseCount(v any) *int {
	switch x := v.(type) {
	case int:
		return &x
	case int64:
		n := int(x)
		return &n
	case float64:
		return floatCount(x)
	case float32:
		return floatCount(float64(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			i := int(n)
			return &i
		}
		if f, err := x.Float64(); err == nil {
			return floatCount(f)
		}
		return nil
	case string:
		return parseCountText(x)
	default:
		return nil
	}
}

func floatCount(f float64) *int {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}

func parseCountText(s string) *int {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(",", "", "_", "", " ", "", "\u00a0", "").Replace(s)

	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return nil
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil
	}
	return &n
}

var hourRange = regexp.MustCompile(`(\d+)\s*[-\x{2013}]\s*(\d+)`)

// ParseHours parses an effort estimate. A range such as "5-7 hours per week"
// yields its rounded mean; otherwise it behaves like ParseCount.
func ParseHours(v any) *int {
	if s, ok := v.(string); ok {
		if m := hourRange.FindStringSubmatch(s); m != nil {
			lo, errLo := strconv.Atoi(m[1])
			hi, errHi := strconv.Atoi(m[2])
			if errLo == nil && errHi == nil {
				n := int(math.Round(float64(lo+hi) / 2))
				return &n
			}
		}
		if i := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }); i > 0 {
			return parseCountText(s[i:])
		}
	}
	return ParseCount(v)
}

// ParseYesNo maps yes/no-like values to a boolean. Anything unrecognized yields nil.
func ParseYesNo(v any) *bool {
	yes, no := true, false
	switch x := v.(type) {
	case bool:
		return &x
	case float64:
		switch x {
		case 1:
			return &yes
		case 0:
			return &no
		}
		return nil
	case int:
		switch x {
		case 1:
			return &yes
		case 0:
			return &no
		}
		return nil
	case json.Number:
		return ParseYesNo(x.String())
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "yes", "y", "true", "1":
			return &yes
		case "no", "n", "false", "0":
			return &no
		}
	}
	return nil
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
