package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown("# listing\n\n`x86` at `ram(0)`", 80)
	assert.Contains(t, out, "listing")
	assert.Contains(t, out, "x86")
}

func TestMarkdownRenderer(t *testing.T) {
	r, err := MarkdownRenderer(40)
	require.NoError(t, err)
	out, err := r.Render("**bold**")
	require.NoError(t, err)
	assert.Contains(t, out, "bold")
}

func TestMenuBarKeepsText(t *testing.T) {
	assert.Contains(t, MenuBar.Render("Q: quit"), "Q: quit")
}
