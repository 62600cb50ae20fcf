package charts

import (
	"fmt"
	"image/color"
)

// Series colors shared by the dashboard and the exported bitmaps.
var (
	ColorBlue   = color.RGBA{59, 130, 246, 0xff}
	ColorGreen  = color.RGBA{16, 185, 129, 0xff}
	ColorAmber  = color.RGBA{245, 158, 11, 0xff}
	ColorRed    = color.RGBA{239, 68, 68, 0xff}
	ColorViolet = color.RGBA{139, 92, 246, 0xff}
	ColorSky    = color.RGBA{14, 165, 233, 0xff}
)

// PieColors cycles through slices of distribution charts.
var PieColors = []color.RGBA{
	{0x00, 0x88, 0xfe, 0xff},
	{0x00, 0xc4, 0x9f, 0xff},
	{0xff, 0xbb, 0x28, 0xff},
	{0xff, 0x80, 0x42, 0xff},
	{0x88, 0x84, 0xd8, 0xff},
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Palette defines the color scheme of one theme.
type Palette struct {
	// Background is the main page background color
	Background string
	// Card is the background for cards/panels
	Card string
	// CardBorder is the border of cards
	CardBorder string
	// Text is the primary text color
	Text string
	// TextMuted is the secondary/muted text color
	TextMuted string
	// Accent is the primary accent color (links, highlights)
	Accent string
	// Grid is the color of chart gridlines
	Grid string
}

var LightPalette = Palette{
	Background: "#f8fafc",
	Card:       "#ffffff",
	CardBorder: "#e2e8f0",
	Text:       "#0f172a",
	TextMuted:  "#64748b",
	Accent:     "#2563eb",
	Grid:       "#e5e7eb",
}

var DarkPalette = Palette{
	Background: "#0f172a",
	Card:       "#1e293b",
	CardBorder: "#334155",
	Text:       "#f1f5f9",
	TextMuted:  "#94a3b8",
	Accent:     "#60a5fa",
	Grid:       "#334155",
}

// ThemePalette returns the palette for the theme flag.
func ThemePalette(dark bool) Palette {
	if dark {
		return DarkPalette
	}
	return LightPalette
}

// ParseHex parses #rrggbb. Malformed input yields opaque black.
func ParseHex(s string) color.RGBA {
	c := color.RGBA{A: 0xff}
	if len(s) == 7 && s[0] == '#' {
		fmt.Sscanf(s[1:], "%02x%02x%02x", &c.R, &c.G, &c.B)
	}
	return c
}
