package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Wi-Fi", "wifi"},
		{"wifi", "wifi"},
		{"  Service   Speed  ", "service speed"},
		{"COFFEE!!", "coffee"},
		{"wi fi", "wi fi"},
		{"", ""},
		{"---", ""},
		{"room #214", "room 214"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLabel(tt.in), "input %q", tt.in)
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank("   \n\t"))
	assert.False(t, IsBlank(" x "))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", Excerpt("short text", 50))
	assert.Equal(t, "", Excerpt("anything", 0))

	got := Excerpt("the quick brown fox jumps over the lazy dog", 20)
	assert.Equal(t, "the quick brown fox...", got)

	// Newlines flatten to single spaces.
	assert.Equal(t, "line one line two", Excerpt("line one\nline two", 50))
}
