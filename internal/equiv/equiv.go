// Package equiv checks that formatting changed nothing but layout. Both
// sources are lexed as Python; whitespace between tokens is ignored and the
// two quote characters are treated as one inside string literals.
package equiv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// ErrNotEquivalent is returned when the formatted source lexes differently.
var ErrNotEquivalent = errors.New("formatted source is not equivalent to the input")

type token struct {
	typ    chroma.TokenType
	value  string
	offset int
}

// Check returns nil when dst carries the same token stream as src.
func Check(src, dst string) error {
	a, err := canonical(src)
	if err != nil {
		return fmt.Errorf("lex input: %w", err)
	}
	b, err := canonical(dst)
	if err != nil {
		return fmt.Errorf("lex output: %w", err)
	}

	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].typ != b[i].typ || a[i].value != b[i].value {
			return fmt.Errorf("%w: input offset %d (%q), output offset %d (%q)",
				ErrNotEquivalent, a[i].offset, a[i].value, b[i].offset, b[i].value)
		}
	}
	switch {
	case len(a) > n:
		return fmt.Errorf("%w: output ends early, input continues at offset %d", ErrNotEquivalent, a[n].offset)
	case len(b) > n:
		return fmt.Errorf("%w: output has extra tokens at offset %d", ErrNotEquivalent, b[n].offset)
	}
	return nil
}

func python() chroma.Lexer {
	if l := lexers.Get("python"); l != nil {
		return l
	}
	return lexers.Fallback
}

// canonical lexes src and folds away what the formatter may change. Adjacent
// string pieces are merged, because the lexer splits literals at escapes and
// delimiters differently for each quote style.
func canonical(src string) ([]token, error) {
	it, err := python().Tokenise(nil, src)
	if err != nil {
		return nil, err
	}

	var (
		out    []token
		offset int
	)
	for t := it(); t != chroma.EOF; t = it() {
		start := offset
		offset += len(t.Value)

		if t.Type.InCategory(chroma.LiteralString) {
			value := strings.ReplaceAll(t.Value, "'", `"`)
			if len(out) > 0 && out[len(out)-1].typ == chroma.LiteralString {
				out[len(out)-1].value += value
				continue
			}
			out = append(out, token{typ: chroma.LiteralString, value: value, offset: start})
			continue
		}

		value := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, t.Value)
		if value == "" {
			continue
		}
		typ := t.Type
		if strings.Trim(value, "\n") == "" {
			typ = chroma.TextWhitespace
			if len(out) > 0 && out[len(out)-1].typ == typ {
				out[len(out)-1].value += value
				continue
			}
		}
		out = append(out, token{typ: typ, value: value, offset: start})
	}
	return out, nil
}
