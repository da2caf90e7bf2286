package report

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Render formats a markdown report for a terminal of the given width.
func Render(doc string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	out, err := r.Render(doc)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return out, nil
}
