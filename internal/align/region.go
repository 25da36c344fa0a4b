package align

import (
	"regexp"
	"strings"
)

// Directive comments understood by black. They are matched inside comment
// text, so "# fmt: off  # legacy" still disables formatting.
var (
	fmtOffRe  = regexp.MustCompile(`\b(?:fmt: ?off|yapf: disable)\b`)
	fmtOnRe   = regexp.MustCompile(`\b(?:fmt: ?on|yapf: enable)\b`)
	fmtSkipRe = regexp.MustCompile(`\bfmt: ?skip\b`)
)

// Region describes whether a row takes part in normalization and alignment.
type Region struct {
	Index int
	// Enabled is false inside a "fmt: off" region and on "fmt: skip" rows.
	Enabled bool
	// Multiline rows carry a token spanning several physical lines and are
	// never aligned.
	Multiline bool
}

// Alignable reports whether the row may be padded.
func (r Region) Alignable() bool {
	return r.Enabled && !r.Multiline
}

// Regions classifies every row of the table.
func Regions(table Table) []Region {
	regions := make([]Region, len(table))
	enabled := true
	for i, row := range table {
		skip := false
		multiline := false
		for _, tok := range row {
			switch tok.Kind {
			case KindComment:
				switch {
				case fmtOffRe.MatchString(tok.Text):
					enabled = false
				case fmtOnRe.MatchString(tok.Text):
					enabled = true
				case fmtSkipRe.MatchString(tok.Text):
					skip = true
				}
			case KindNewline:
				continue
			}
			if strings.Contains(tok.Text, "\n") {
				multiline = true
			}
		}
		regions[i] = Region{
			Index:     i,
			Enabled:   enabled && !skip,
			Multiline: multiline,
		}
	}
	return regions
}
