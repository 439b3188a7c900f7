package utils

import (
	"encoding/json"
	"strings"
)

// ParseStringList turns form values into a list of strings. Each value may
// be a JSON array, a JSON string, or a raw scalar, which becomes a
// one-element list. Repeated values are concatenated in order and blank
// entries dropped.
func ParseStringList(values ...string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		var list []string
		if err := json.Unmarshal([]byte(v), &list); err == nil {
			out = appendNonEmpty(out, list...)
			continue
		}

		var single string
		if err := json.Unmarshal([]byte(v), &single); err == nil {
			out = appendNonEmpty(out, single)
			continue
		}

		out = appendNonEmpty(out, v)
	}
	return out
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

// StringSet builds a membership set from values.
func StringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
