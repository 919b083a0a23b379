package bridge

import (
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

var (
	// White is used for plain text and for sender names without a usable color.
	White = colorful.Color{R: 1, G: 1, B: 1}
	// DiscordPurple (#AA00FF) tags lines relayed from Discord.
	DiscordPurple, _ = colorful.Hex("#aa00ff")
)

// Segment is a run of text drawn in a single color.
type Segment struct {
	Text  string
	Color colorful.Color
}

// Line is a chat line made of colored segments. Hosts render it with their own
// text facilities.
type Line []Segment

// String returns the line without colors.
func (l Line) String() string {
	var b strings.Builder
	for _, s := range l {
		b.WriteString(s.Text)
	}
	return b.String()
}

// ParseColor accepts "#RRGGBB", "RRGGBB" and the three digit short forms.
// Anything else yields White and false.
func ParseColor(s string) (colorful.Color, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return White, false
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return White, false
	}
	return c, true
}

// DiscordChatLine renders "[Discord] <sender> > <message>".
func DiscordChatLine(sender, message, color string) Line {
	senderColor, _ := ParseColor(color)
	return Line{
		{Text: "[", Color: White},
		{Text: "Discord", Color: DiscordPurple},
		{Text: "] ", Color: White},
		{Text: sender, Color: senderColor},
		{Text: " > " + message, Color: White},
	}
}
