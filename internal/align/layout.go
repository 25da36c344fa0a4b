package align

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvariant means the scanner produced a row the layout pass cannot trust.
var ErrInvariant = errors.New("broken row invariant")

// AlignBefore lists the separators a column can be aligned on. The token in
// front of one of these is padded.
var AlignBefore = map[string]bool{
	"<<=": true, ">>=": true, "**=": true, "//=": true,
	"+=": true, "-=": true, "*=": true, "/=": true, "%=": true, "|=": true, "&=": true, "@=": true,
	"==": true, "!=": true, "<=": true, ">=": true,
	"//": true, "<<": true, ">>": true, "^=": true, "~=": true,
	"in": true, "is": true,
	"},": true, "],": true, "),": true,
	"->": true,
	",": true, ":": true, "=": true,
	"+": true, "-": true, "*": true, "/": true,
	"%": true, "|": true, "&": true, "^": true, "~": true,
	"!": true, "<": true, ">": true,
	"}": true, "]": true, ")": true,
}

// ContextEntry records one alignable separator of a row.
type ContextEntry struct {
	Col  int
	Kind Kind
	Text string
	// Layout is the row fingerprint up to and including Col. Rows can only
	// share the column when their layouts are equal.
	Layout string
	// Width is the rendered width of the token at Col-1.
	Width int
}

func (e ContextEntry) less(o ContextEntry) bool {
	if e.Col != o.Col {
		return e.Col < o.Col
	}
	if e.Kind != o.Kind {
		return e.Kind < o.Kind
	}
	if e.Text != o.Text {
		return e.Text < o.Text
	}
	return e.Layout < o.Layout
}

// layoutBuilder accumulates a row fingerprint token by token.
type layoutBuilder struct {
	sb strings.Builder
}

func (b *layoutBuilder) add(row Row, col int) string {
	tok := row[col]
	b.sb.WriteByte('0' + byte(tok.Kind))
	switch tok.Kind {
	case KindIndent:
		b.sb.WriteString(tok.Text)
	case KindSeparator:
		b.sb.WriteString(tok.Text)
		if !AlignBefore[tok.Text] {
			// Brackets do not align, but rows only stay comparable while
			// they open at the same offset from the previous token.
			prev := 0
			if col > 0 {
				prev = Width(row[col-1].Text)
			}
			b.sb.WriteString("::")
			b.sb.WriteString(strconv.Itoa(prev))
		}
	}
	b.sb.WriteByte('\x1f')
	return b.sb.String()
}

// rowContext lists the alignable separators of a single row.
func rowContext(row Row, index int) ([]ContextEntry, error) {
	var (
		lb      layoutBuilder
		entries []ContextEntry
	)
	for col, tok := range row {
		layout := lb.add(row, col)
		if !AlignBefore[tok.Text] {
			continue
		}
		if tok.Kind != KindSeparator {
			return nil, fmt.Errorf("%w: row %d col %d: %s carries separator text", ErrInvariant, index, col, tok)
		}
		// A closer at column 0 (a top-level ")" line) has nothing to pad.
		if col == 0 || row[col-1].Kind == KindSeparator {
			continue
		}
		entries = append(entries, ContextEntry{
			Col:    col,
			Kind:   tok.Kind,
			Text:   tok.Text,
			Layout: layout,
			Width:  Width(row[col-1].Text),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].less(entries[j]) })
	return entries, nil
}

// BuildContexts returns one context per row. Rows outside an enabled region
// or spanning several lines get an empty context, which breaks any run.
func BuildContexts(table Table, regions []Region) ([][]ContextEntry, error) {
	contexts := make([][]ContextEntry, len(table))
	for i, row := range table {
		if !regions[i].Alignable() {
			continue
		}
		entries, err := rowContext(row, i)
		if err != nil {
			return nil, err
		}
		contexts[i] = entries
	}
	return contexts, nil
}
