package align

import (
	"strings"
)

// Realign pads the token in front of each run's column so the separator
// starts at the same offset on every member row. Runs are applied in order;
// widths are measured on the table as it is being rewritten.
func Realign(table Table, runs []Run) {
	for _, run := range runs {
		realignRun(table, run)
	}
}

func realignRun(table Table, run Run) {
	if len(run.Cells) < 2 {
		return
	}
	left := run.Col - 1

	offset := -1
	target := 0
	for _, cell := range run.Cells {
		row := table[cell.Row]
		// Equal logical columns are not enough, the cell has to start at the
		// same physical offset on every row.
		if o := row.offsetBefore(left); offset < 0 {
			offset = o
		} else if o != offset {
			return
		}
		w := Width(row[left].Text)
		if w > target {
			target = w
		}
	}

	for _, cell := range run.Cells {
		row := table[cell.Row]
		tok := row[left]
		extra := target - Width(tok.Text)
		if extra <= 0 {
			continue
		}
		pad := strings.Repeat(" ", extra)
		switch {
		// Keys in front of a colon stay left-aligned even when numeric.
		case run.Text != ":" && isNumber(tok.Text):
			row[left] = Token{Kind: KindCode, Text: pad + tok.Text}
		case isLastSeparator(row, run.Col):
			// Never leave trailing spaces in front of a line end.
		default:
			row[left] = Token{Kind: KindCode, Text: tok.Text + pad}
		}
	}
}

// isNumber reports whether text is a decimal literal such as 123_456.
func isNumber(text string) bool {
	digits := strings.ReplaceAll(strings.TrimSpace(text), "_", "")
	if digits == "" {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
	}
	return true
}

func isLastSeparator(row Row, col int) bool {
	for _, tok := range row[col+1:] {
		switch tok.Kind {
		case KindNewline, KindComment, KindWhitespace:
		default:
			return false
		}
	}
	return true
}
