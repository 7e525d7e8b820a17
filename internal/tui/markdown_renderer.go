package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// minMarkdownWrap keeps narrow overlays readable.
const minMarkdownWrap = 24

// markdownRenderer renders card descriptions and caches the last result per width.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer

	lastInput  string
	lastOutput string
}

// render converts markdown input into ANSI-styled terminal text wrapped at width.
// Rendering failures fall back to the raw text.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	wrapWidth := max(width, minMarkdownWrap)

	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
		r.lastInput, r.lastOutput = "", ""
	}
	if markdown == r.lastInput {
		return r.lastOutput
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	r.lastInput = markdown
	r.lastOutput = strings.Trim(rendered, "\n")
	return r.lastOutput
}
