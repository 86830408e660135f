package strings

import (
	"strings"
)

// CellWidth is the width tool descriptions and results are cut to in CLI tables
// and log lines.
const CellWidth = 60

// minWidth leaves room for one rune plus the ellipsis.
const minWidth = 4

// OneLine collapses every run of whitespace in s into one space and cuts the
// result to width runes, ending in "..." when cut. Widths below 4 count as 4.
func OneLine(s string, width int) string {
	if width < minWidth {
		width = minWidth
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > width {
		return string(runes[:width-3]) + "..."
	}
	return s
}
