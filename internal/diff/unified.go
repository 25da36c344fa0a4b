package diff

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const noNewlineMarker = `\ No newline at end of file`

// Unified renders fd in unified diff format. It returns "" when nothing
// changed.
func Unified(fd *FileDiff) string {
	if !fd.Changed() {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", fd.OldPath, fd.NewPath)
	for _, h := range fd.Hunks {
		fmt.Fprintf(&sb, "@@ -%s +%s @@\n", formatRange(h.OldStart, h.OldCount), formatRange(h.NewStart, h.NewCount))
		for _, line := range h.Lines {
			switch line.Type {
			case LineAdded:
				sb.WriteByte('+')
			case LineRemoved:
				sb.WriteByte('-')
			default:
				sb.WriteByte(' ')
			}
			sb.WriteString(line.Content)
			sb.WriteByte('\n')
			if line.NoNewline {
				sb.WriteString(noNewlineMarker)
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}

// formatRange follows the GNU convention: a single line has no count and an
// empty range points at the line before it.
func formatRange(start, count int) string {
	switch count {
	case 1:
		return strconv.Itoa(start)
	case 0:
		return strconv.Itoa(start-1) + ",0"
	default:
		return strconv.Itoa(start) + "," + strconv.Itoa(count)
	}
}

// Colorizer highlights unified diff text for a terminal.
type Colorizer struct {
	header  lipgloss.Style
	hunk    lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style
}

// NewColorizer returns a colorizer for output written to w. With force set,
// ANSI colors are emitted even when w is not a terminal.
func NewColorizer(w io.Writer, force bool) *Colorizer {
	r := lipgloss.NewRenderer(w)
	if force {
		r.SetColorProfile(termenv.ANSI)
	}
	// Diff lines must reach the terminal verbatim, tabs included.
	base := r.NewStyle().TabWidth(lipgloss.NoTabConversion)
	return &Colorizer{
		header:  base.Bold(true),
		hunk:    base.Foreground(lipgloss.Color("6")),
		added:   base.Foreground(lipgloss.Color("2")),
		removed: base.Foreground(lipgloss.Color("1")),
	}
}

// Colorize styles each line of a unified diff by its prefix.
func (c *Colorizer) Colorize(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.SplitAfter(text, "\n")
	var sb strings.Builder
	for _, raw := range lines {
		if raw == "" {
			continue
		}
		line := strings.TrimSuffix(raw, "\n")
		style, ok := c.styleFor(line)
		if ok && line != "" {
			sb.WriteString(style.Render(line))
		} else {
			sb.WriteString(line)
		}
		if strings.HasSuffix(raw, "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func (c *Colorizer) styleFor(line string) (lipgloss.Style, bool) {
	switch {
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return c.header, true
	case strings.HasPrefix(line, "@@"):
		return c.hunk, true
	case strings.HasPrefix(line, "+"):
		return c.added, true
	case strings.HasPrefix(line, "-"):
		return c.removed, true
	}
	return lipgloss.Style{}, false
}
