package keymap

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyMap(t *testing.T) {
	km := DefaultKeyMap()

	require.NotNil(t, km)
}

func TestDefaultKeyMap_Bindings(t *testing.T) {
	km := DefaultKeyMap()

	tests := []struct {
		name    string
		binding key.Binding
		keys    []string
	}{
		{"quit", km.Quit, []string{"q", "ctrl+c"}},
		{"submit", km.Submit, []string{"enter"}},
		{"back", km.Back, []string{"esc"}},
		{"up", km.Up, []string{"up", "k"}},
		{"down", km.Down, []string{"down", "j"}},
		{"scroll up", km.ScrollUp, []string{"pgup"}},
		{"scroll down", km.ScrollDown, []string{"pgdown"}},
		{"new question", km.NewQuestion, []string{"n", "/"}},
		{"toggle mode", km.ToggleMode, []string{"tab"}},
		{"toggle source", km.ToggleSource, []string{"enter"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range tt.keys {
				assert.Contains(t, tt.binding.Keys(), k)
			}
			assert.NotEmpty(t, tt.binding.Help().Desc)
		})
	}
}

func TestKeyMap_ShortHelp(t *testing.T) {
	km := DefaultKeyMap()

	help := km.ShortHelp()

	require.Len(t, help, 3)
	assert.Equal(t, "enter", help[0].Help().Key)
}

func TestKeyMap_AnswerHelp(t *testing.T) {
	km := DefaultKeyMap()

	help := km.AnswerHelp()

	assert.NotEmpty(t, help)
	assert.Equal(t, "n", help[0].Help().Key)
}

func TestKeyMap_FullHelp(t *testing.T) {
	km := DefaultKeyMap()

	groups := km.FullHelp()

	require.Len(t, groups, 3)
	for _, g := range groups {
		assert.NotEmpty(t, g)
	}
}

func TestMatches(t *testing.T) {
	km := DefaultKeyMap()

	tests := []struct {
		key      string
		binding  key.Binding
		expected bool
	}{
		{"q", km.Quit, true},
		{"ctrl+c", km.Quit, true},
		{"x", km.Quit, false},
		{"tab", km.ToggleMode, true},
		{"/", km.NewQuestion, true},
		{"enter", km.NewQuestion, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, Matches(tt.key, tt.binding))
		})
	}
}
