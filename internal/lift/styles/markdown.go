package styles

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/x/exp/charmtone"
)

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
func uintPtr(u uint) *uint       { return &u }

// MarkdownRenderer returns a glamour renderer using the lift palette.
func MarkdownRenderer(width int) (*glamour.TermRenderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithStyles(MarkdownStyle()),
		glamour.WithWordWrap(width),
	)
}

// RenderMarkdown renders md, falling back to the raw text when rendering
// fails.
func RenderMarkdown(md string, width int) string {
	r, err := MarkdownRenderer(width)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// Header colours.
var (
	headerText   = charmtone.Smoke.Hex()
	headerTitle  = charmtone.Zest.Hex()
	headerBadge  = charmtone.Charple.Hex()
	headerInline = charmtone.Malibu.Hex()
	headerMuted  = charmtone.Squid.Hex()
)

// MarkdownStyle is the glamour style of listing and pcode headers: an H1
// badge for the title and inline code for addresses and instruction text.
func MarkdownStyle() ansi.StyleConfig {
	var cfg ansi.StyleConfig
	cfg.Document.Color = stringPtr(headerText)
	cfg.Document.Margin = uintPtr(0)

	cfg.Heading.Bold = boolPtr(true)
	cfg.Heading.BlockSuffix = "\n"
	cfg.H1.Prefix = " "
	cfg.H1.Suffix = " "
	cfg.H1.Color = stringPtr(headerTitle)
	cfg.H1.BackgroundColor = stringPtr(headerBadge)

	cfg.Code.Color = stringPtr(headerInline)
	cfg.CodeBlock.Color = stringPtr(headerMuted)
	cfg.CodeBlock.Margin = uintPtr(2)
	cfg.Strong.Bold = boolPtr(true)
	return cfg
}
