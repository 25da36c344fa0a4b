package align

import (
	"regexp"
	"strings"
)

var (
	symbolStringRe = regexp.MustCompile(`^"[a-zA-Z0-9_\-]+"$`)
	nonSymbolRe    = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)
)

// attrAccessors take an attribute name as their second argument.
var attrAccessors = map[string]bool{
	"getattr": true,
	"setattr": true,
	"delattr": true,
}

// NormalizeStrings applies the quoting convention to one row: symbols
// (dictionary keys, attribute names) use single quotes, text uses double
// quotes. Only the syntactic shapes below are recognized; everything else is
// left alone.
func NormalizeStrings(row Row) {
	for col, tok := range row {
		if isKeySymbolAccess(row, col) {
			row[col-1] = Token{Kind: KindBlock, Text: singleQuoted(row[col-1].Text)}
		}
		if attrCol, ok := attrSymbolAccess(row, col, tok); ok {
			row[attrCol] = Token{Kind: KindBlock, Text: singleQuoted(row[attrCol].Text)}
		}
	}

	for col, tok := range row {
		if isSingleQuotedText(tok) {
			body := tok.Text[1 : len(tok.Text)-1]
			row[col] = Token{Kind: KindBlock, Text: `"` + body + `"`}
		}
	}
}

func isSymbolBlock(tok Token) bool {
	return tok.Kind == KindBlock && symbolStringRe.MatchString(strings.TrimSpace(tok.Text))
}

// singleQuoted rewrites a double-quoted symbol. Symbols contain no quotes or
// escapes, so swapping every quote character is safe.
func singleQuoted(text string) string {
	return strings.ReplaceAll(text, `"`, `'`)
}

// isKeySymbolAccess matches d["key"], d["key"], and {"key": ...}. The token
// at col is the separator following the string.
func isKeySymbolAccess(row Row, col int) bool {
	tok := row[col]
	if tok.Kind != KindSeparator || col == 0 {
		return false
	}
	switch tok.Text {
	case ":", "]", "],":
	default:
		return false
	}
	if !isSymbolBlock(row[col-1]) {
		return false
	}
	if tok.Text == ":" {
		return true
	}
	return col >= 2 && row[col-2].Kind == KindSeparator && row[col-2].Text == "["
}

// attrSymbolAccess matches getattr(obj, "name") starting at the accessor and
// returns the column of the name.
func attrSymbolAccess(row Row, col int, tok Token) (int, bool) {
	if tok.Kind != KindCode || !attrAccessors[tok.Text] {
		return 0, false
	}
	if col+5 >= len(row) {
		return 0, false
	}
	ok := isSep(row[col+1], "(") &&
		row[col+2].Kind == KindCode &&
		isSep(row[col+3], ",") &&
		row[col+4].Kind == KindWhitespace && row[col+4].Text == " " &&
		isSymbolBlock(row[col+5])
	return col + 5, ok
}

func isSep(tok Token, text string) bool {
	return tok.Kind == KindSeparator && tok.Text == text
}

func isSingleQuotedText(tok Token) bool {
	if tok.Kind != KindBlock || len(tok.Text) <= 2 {
		return false
	}
	text := tok.Text
	if text[0] != '\'' || text[len(text)-1] != '\'' || strings.HasPrefix(text, `'''`) {
		return false
	}
	body := text[1 : len(text)-1]
	return !strings.Contains(body, `"`) && nonSymbolRe.MatchString(body)
}
