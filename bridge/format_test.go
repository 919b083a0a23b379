package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"#00FF00", "#00ff00", true},
		{"00ff00", "#00ff00", true},
		{"#0f0", "#00ff00", true},
		{"notacolor", "#ffffff", false},
		{"", "#ffffff", false},
		{"#zz0000", "#ffffff", false},
	}

	for _, tc := range tests {
		got, ok := ParseColor(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		assert.Equal(t, tc.want, got.Hex(), tc.in)
	}
}

func TestDiscordChatLine(t *testing.T) {
	line := DiscordChatLine("Bot", "hi", "#00FF00")

	assert.Equal(t, "[Discord] Bot > hi", line.String())
	assert.Equal(t, "#aa00ff", line[1].Color.Hex())
	assert.Equal(t, "Bot", line[3].Text)
	assert.Equal(t, "#00ff00", line[3].Color.Hex())
}

func TestDiscordChatLineFallsBackToWhite(t *testing.T) {
	line := DiscordChatLine("Bot", "hi", "notacolor")

	assert.Equal(t, "[Discord] Bot > hi", line.String())
	assert.Equal(t, "#ffffff", line[3].Color.Hex())
}
