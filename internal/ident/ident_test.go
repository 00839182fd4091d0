package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		input    string
		expected Ident
	}{
		{"Population", "population"},
		{"  Birth Rate ", "birth_rate"},
		{"birth\\nrate", "birth_rate"},
		{"\"quoted name\"", "quoted_name"},
		{"a  \t b", "a_b"},
		{"already_canonical", "already_canonical"},
		{"a___b", "a_b"},
		{"Größe", "größe"},
		{"温度", "温度"},
		{"MiXeD_Case", "mixed_case"},
		{"line\nbreak", "line_break"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Canonicalize(tt.input))
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Population", "  Birth Rate ", "\"quoted name\"", "a\\nb",
		"ß", "İstanbul", "ΣΙΣΥΦΟΣ", "x y\tz", "", "_", "\"\"",
	}
	for _, s := range inputs {
		once := Canonicalize(s)
		twice := Canonicalize(string(once))
		assert.Equal(t, once, twice, "canonicalize not idempotent for %q", s)
	}
}

func TestSynthetic(t *testing.T) {
	id := Synthetic("smth3", "output")
	assert.True(t, IsSynthetic(id))
	assert.False(t, IsSynthetic("output"))
}
