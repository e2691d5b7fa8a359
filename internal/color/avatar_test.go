package color

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hexColor = regexp.MustCompile(`^#[0-9A-F]{6}$`)

func TestForUser_Deterministic(t *testing.T) {
	a := ForUser("user-123")
	assert.Regexp(t, hexColor, a)
	assert.Equal(t, a, ForUser("user-123"))
	assert.NotEqual(t, a, ForUser("user-456"))
}

func TestForUser_Empty(t *testing.T) {
	assert.Regexp(t, hexColor, ForUser(""))
}

func TestHSLToRGB_Gray(t *testing.T) {
	r, g, b := hslToRGB(120, 0, 0.5)
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"two words", "Ana Silva", "AS"},
		{"three words", "ana maria silva", "AS"},
		{"single word", "bruno", "B"},
		{"punctuation", "  o'neil, j. ", "OJ"},
		{"accented", "élodie ünal", "ÉÜ"},
		{"no letters", " - ", "?"},
		{"empty", "", "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Initials(tt.in))
		})
	}
}
