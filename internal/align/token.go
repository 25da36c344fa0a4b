// Package align re-inserts whitespace into already formatted Python source
// so that related tokens on consecutive lines share a column, and normalizes
// the quote character of symbol-like and text-like string literals.
//
// The package never re-flows lines. It expects the output of an upstream
// formatter (black) and only changes spaces inside lines and quote characters.
package align

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
)

// Kind classifies a token produced by the scanner.
type Kind uint8

const (
	KindIndent     Kind = iota // Leading horizontal whitespace of a line
	KindSeparator              // Operator, bracket or punctuation
	KindCode                   // Anything between separators
	KindNewline                // A single "\n"
	KindBlock                  // Quoted string literal, possibly multi-line
	KindComment                // "#" up to end of line
	KindWhitespace             // Blank run between separators
)

var kindNames = [...]string{
	KindIndent:     "indent",
	KindSeparator:  "separator",
	KindCode:       "code",
	KindNewline:    "newline",
	KindBlock:      "block",
	KindComment:    "comment",
	KindWhitespace: "whitespace",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Token is one span of the input. Concatenating the Text of every token
// reproduces the input exactly.
type Token struct {
	Kind Kind
	Text string
}

func (t Token) String() string {
	return t.Kind.String() + "(" + strconv.Quote(t.Text) + ")"
}

// Row is one physical line, terminated by its Newline token unless it is the
// last line of an input without a trailing newline.
type Row []Token

// Table is the token stream grouped into rows.
type Table []Row

// BuildTable groups tokens into rows. The table always has at least one row;
// the last row is empty when the input ends with a newline.
func BuildTable(tokens []Token) Table {
	table := Table{Row{}}
	for _, tok := range tokens {
		last := len(table) - 1
		table[last] = append(table[last], tok)
		if tok.Kind == KindNewline {
			table = append(table, Row{})
		}
	}
	return table
}

// String serializes the table back to text.
func (t Table) String() string {
	var sb strings.Builder
	for _, row := range t {
		for _, tok := range row {
			sb.WriteString(tok.Text)
		}
	}
	return sb.String()
}

// Width returns the rendered width of s in terminal cells. Tabs and other
// control characters count as one cell each.
func Width(s string) int {
	w := 0
	for _, r := range s {
		if unicode.IsControl(r) {
			w++
			continue
		}
		w += runewidth.RuneWidth(r)
	}
	return w
}

// offsetBefore is the rendered width of row[:col].
func (r Row) offsetBefore(col int) int {
	w := 0
	for _, tok := range r[:col] {
		w += Width(tok.Text)
	}
	return w
}
