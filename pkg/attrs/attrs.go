package attrs

import "fmt"

// ExtractString extracts a value from a key-value attribute slice as a string.
// The slice should be formatted as [key1, value1, key2, value2, ...].
// Strings are returned as-is and fmt.Stringer values are rendered; anything
// else, or a missing key, yields "".
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		switch v := attrs[i+1].(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		}
	}
	return ""
}

// ToStringMap renders every pair whose key is not in skip as key -> fmt.Sprint(value).
func ToStringMap(attrs []any, skip ...string) map[string]string {
	skipped := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipped[s] = struct{}{}
	}
	var out map[string]string
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok {
			continue
		}
		if _, drop := skipped[k]; drop {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = fmt.Sprint(attrs[i+1])
	}
	return out
}
