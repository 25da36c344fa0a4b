package align

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrNoProgress means a scan step consumed no input.
	ErrNoProgress = errors.New("scanner made no progress")
	// ErrUnterminated means a string block has no closing delimiter.
	ErrUnterminated = errors.New("unterminated string block")
)

// ScanError reports where the scanner lost synchronization with its input.
type ScanError struct {
	Offset  int
	Context string
	Err     error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("align: %v at offset %d near %q", e.Err, e.Offset, e.Context)
}

func (e *ScanError) Unwrap() error { return e.Err }

// separators is ordered: at a given offset the first entry that matches wins.
var separators = []string{
	`'''`, `"""`, `"`, `'`, `#`,

	"<<=", ">>=", "**=", "//=",
	"+=", "-=", "*=", "/=", "%=", "|=", "&=", "@=",
	"==", "!=", "<=", ">=",
	"//", "<<", ">>", "^=", "~=",
	"in", "is",
	"},", "],", "),",
	"->",
	",", ":", "=",
	"+", "-", "*", "/",
	"%", "|", "&", "^", "~",
	"!", "<", ">",
	"{", "[", "(",
	"}", "]", ")",
}

// sepLeaders holds every byte a separator can start with.
const sepLeaders = `'"#<>*/+-%|&@=!^~i}]),:{[(`

// blockClosers maps an opener to the delimiter that ends it. "#" is absent,
// comments end at the line end.
var blockClosers = map[string]string{
	`'''`: `'''`,
	`"""`: `"""`,
	`"`:   `"`,
	`'`:   `'`,
}

// Scanner splits formatted source into alignment tokens. It is lazy and can
// only be consumed once.
type Scanner struct {
	src   string
	pos   int
	queue []Token
	err   error
}

// NewScanner returns a scanner positioned at the start of src.
func NewScanner(src string) *Scanner {
	return &Scanner{src: src}
}

// Next returns the next token, io.EOF after the last one, or a *ScanError.
func (s *Scanner) Next() (Token, error) {
	for len(s.queue) == 0 {
		if s.err != nil {
			return Token{}, s.err
		}
		if s.pos >= len(s.src) {
			return Token{}, io.EOF
		}
		start := s.pos
		if err := s.step(); err != nil {
			s.err = err
			continue
		}
		if s.pos <= start {
			s.err = s.fail(start, ErrNoProgress)
		}
	}
	tok := s.queue[0]
	s.queue = s.queue[1:]
	return tok, nil
}

// Tokenize scans src completely.
func Tokenize(src string) ([]Token, error) {
	s := NewScanner(src)
	var tokens []Token
	for {
		tok, err := s.Next()
		if err == io.EOF {
			return tokens, nil
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

func (s *Scanner) emit(kind Kind, text string) {
	s.queue = append(s.queue, Token{Kind: kind, Text: text})
}

// emitSpan emits text that lies between two separators.
func (s *Scanner) emitSpan(text string) {
	if strings.TrimSpace(text) == "" {
		s.emit(KindWhitespace, text)
	} else {
		s.emit(KindCode, text)
	}
}

func (s *Scanner) fail(offset int, err error) error {
	end := offset + 40
	if end > len(s.src) {
		end = len(s.src)
	}
	return &ScanError{Offset: offset, Context: s.src[offset:end], Err: err}
}

func (s *Scanner) step() error {
	at, sep, ok := s.findSeparator(s.pos)
	switch {
	case !ok:
		s.emitSpan(s.src[s.pos:])
		s.pos = len(s.src)
	case sep == "\n":
		if at > s.pos {
			s.emit(KindCode, s.src[s.pos:at])
		}
		s.emit(KindNewline, "\n")
		s.pos = at + 1
		s.scanIndent()
	case at > s.pos:
		s.emitSpan(s.src[s.pos:at])
		s.pos = at
	case sep == "#":
		end := strings.IndexByte(s.src[at:], '\n')
		if end < 0 {
			end = len(s.src)
		} else {
			end += at
		}
		s.emit(KindComment, s.src[at:end])
		s.pos = end
	default:
		if closer, isBlock := blockClosers[sep]; isBlock {
			bodyStart := at + len(sep)
			end := findCloser(s.src, bodyStart, closer)
			if end < 0 {
				return s.fail(at, ErrUnterminated)
			}
			end += len(closer)
			s.emit(KindBlock, s.src[at:end])
			s.pos = end
			return nil
		}
		s.emit(KindSeparator, sep)
		s.pos = at + len(sep)
	}
	return nil
}

func (s *Scanner) scanIndent() {
	i := s.pos
	for i < len(s.src) && (s.src[i] == ' ' || s.src[i] == '\t') {
		i++
	}
	if i > s.pos {
		s.emit(KindIndent, s.src[s.pos:i])
		s.pos = i
	}
}

// findSeparator returns the offset and text of the next separator at or after
// from. A line end is reported as "\n".
func (s *Scanner) findSeparator(from int) (int, string, bool) {
	for i := from; i < len(s.src); i++ {
		c := s.src[i]
		if c == '\n' {
			return i, "\n", true
		}
		if strings.IndexByte(sepLeaders, c) < 0 {
			continue
		}
		if sep := s.matchAt(i); sep != "" {
			return i, sep, true
		}
	}
	return 0, "", false
}

func (s *Scanner) matchAt(i int) string {
	rest := s.src[i:]
	for _, sep := range separators {
		if !strings.HasPrefix(rest, sep) {
			continue
		}
		switch sep {
		case "in", "is":
			if !s.wordBounded(i, len(sep)) {
				continue
			}
		case "=":
			if len(rest) < 2 || rest[1] != ' ' {
				continue
			}
		}
		return sep
	}
	return ""
}

func (s *Scanner) wordBounded(i, n int) bool {
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s.src[:i])
		if isWordRune(r) {
			return false
		}
	}
	if i+n < len(s.src) {
		r, _ := utf8.DecodeRuneInString(s.src[i+n:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// findCloser returns the offset of the first closer at or after bodyStart that
// is not escaped, or -1.
func findCloser(src string, bodyStart int, closer string) int {
	from := bodyStart
	for {
		k := strings.Index(src[from:], closer)
		if k < 0 {
			return -1
		}
		at := from + k
		if backslashRun(src, bodyStart, at)%2 == 0 {
			return at
		}
		from = at + 1
	}
}

// backslashRun counts consecutive backslashes ending just before at, without
// looking past lo.
func backslashRun(src string, lo, at int) int {
	n := 0
	for i := at - 1; i >= lo && src[i] == '\\'; i-- {
		n++
	}
	return n
}
