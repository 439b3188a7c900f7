package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStringList(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{"none", nil, nil},
		{"blank", []string{"  "}, nil},
		{"json array", []string{`["https://a/1.png","https://a/2.png"]`}, []string{"https://a/1.png", "https://a/2.png"}},
		{"json string", []string{`"https://a/1.png"`}, []string{"https://a/1.png"}},
		{"raw scalar", []string{"https://a/1.png"}, []string{"https://a/1.png"}},
		{"repeated values", []string{"https://a/1.png", `["https://a/2.png"]`}, []string{"https://a/1.png", "https://a/2.png"}},
		{"empty json array", []string{"[]"}, nil},
		{"drops blank entries", []string{`["", "x"]`}, []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStringList(tt.values...))
		})
	}
}

func TestStringSet(t *testing.T) {
	set := StringSet([]string{"a", "b", "a"})
	assert.Len(t, set, 2)
	_, ok := set["b"]
	assert.True(t, ok)
}
