// Package lexer converts a source buffer into a stream of token.Token
// values.
package lexer

import (
	"github.com/skx/subc/internal/diag"
	"github.com/skx/subc/token"
)

// Lexer holds our scanning state over a single source buffer.
type Lexer struct {
	source string // the full source buffer, kept for diagnostics
	pos    int    // current byte position
}

// New creates a Lexer over source.
func New(source string) *Lexer {
	return &Lexer{source: source}
}

// Tokenize scans source in full and returns the resulting token sequence,
// terminated by an EOF token. It returns the first lexical error
// encountered, if any; scanning stops at the first error.
func Tokenize(source string) ([]token.Token, error) {
	l := New(source)
	var toks []token.Token

	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) cur() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peek(ahead int) byte {
	idx := l.pos + ahead
	if idx >= len(l.source) {
		return 0
	}
	return l.source[idx]
}

func (l *Lexer) errorAt(offset int, format string, args ...interface{}) error {
	return diag.NewLexError(offset, format, args...)
}

// next scans and returns the next token, advancing past it.
func (l *Lexer) next() (token.Token, error) {

	if err := l.skipWhitespaceAndComments(); err != nil {
		return token.Token{}, err
	}

	start := l.pos
	if l.pos >= len(l.source) {
		return token.Token{Kind: token.EOF, Offset: start}, nil
	}

	c := l.cur()

	switch {
	case c == '"':
		return l.readString()
	case isDigit(c):
		return l.readNumber(), nil
	case isIdentStart(c):
		return l.readIdentifier(), nil
	}

	// Two-character operators are tried before one-character ones.
	if two, ok := twoCharOperator(l.source, l.pos); ok {
		l.pos += 2
		return token.Token{Kind: two, Text: l.source[start:l.pos], Offset: start, Length: 2}, nil
	}

	if kind, ok := punctuators[c]; ok {
		l.pos++
		return token.Token{Kind: kind, Text: string(c), Offset: start, Length: 1}, nil
	}

	return token.Token{}, l.errorAt(start, "Invalid token")
}

func twoCharOperator(src string, pos int) (token.Kind, bool) {
	if pos+1 >= len(src) {
		return "", false
	}
	switch src[pos : pos+2] {
	case "==":
		return token.EQ, true
	case "!=":
		return token.NE, true
	case "<=":
		return token.LE, true
	case ">=":
		return token.GE, true
	}
	return "", false
}

var punctuators = map[byte]token.Kind{
	'+': token.PLUS,
	'-': token.MINUS,
	'*': token.ASTERISK,
	'/': token.SLASH,
	'%': token.PERCENT,
	'<': token.LT,
	'>': token.GT,
	'=': token.ASSIGN,
	'(': token.LPAREN,
	')': token.RPAREN,
	'{': token.LBRACE,
	'}': token.RBRACE,
	'[': token.LBRACKET,
	']': token.RBRACKET,
	';': token.SEMI,
	',': token.COMMA,
	'&': token.AMP,
}

// skipWhitespaceAndComments advances past ASCII whitespace, "//" line
// comments, and "/* ... */" block comments, applied in that priority order
// at each position, per spec.md's scanning rules 1-2.
func (l *Lexer) skipWhitespaceAndComments() error {
	for {
		switch {
		case isSpace(l.cur()):
			l.pos++

		case l.cur() == '/' && l.peek(1) == '/':
			for l.pos < len(l.source) && l.cur() != '\n' {
				l.pos++
			}

		case l.cur() == '/' && l.peek(1) == '*':
			start := l.pos
			l.pos += 2
			closed := false
			for l.pos < len(l.source) {
				if l.cur() == '*' && l.peek(1) == '/' {
					l.pos += 2
					closed = true
					break
				}
				l.pos++
			}
			if !closed {
				return l.errorAt(start, "Unclosed block comment")
			}

		default:
			return nil
		}
	}
}

// readString scans a `"..."` literal. The sequence `\X` consumes two
// characters regardless of X; escape interpretation is deferred to the
// parser. The returned token's Text includes both delimiting quotes.
func (l *Lexer) readString() (token.Token, error) {
	start := l.pos
	l.pos++ // opening quote

	for {
		if l.pos >= len(l.source) {
			return token.Token{}, l.errorAt(start, "Unclosed string literal")
		}
		if l.cur() == '"' {
			l.pos++
			break
		}
		if l.cur() == '\\' {
			l.pos++
		}
		l.pos++
	}

	text := l.source[start:l.pos]
	return token.Token{Kind: token.STRING, Text: text, Offset: start, Length: len(text)}, nil
}

// readNumber scans a decimal integer literal. Only base-10 literals are
// supported, per spec.md.
func (l *Lexer) readNumber() token.Token {
	start := l.pos
	val := 0
	for isDigit(l.cur()) {
		val = val*10 + int(l.cur()-'0')
		l.pos++
	}
	text := l.source[start:l.pos]
	return token.Token{Kind: token.NUMBER, Text: text, Offset: start, Length: len(text), IntValue: val}
}

// readIdentifier scans `[A-Za-z_][A-Za-z0-9_]*` and classifies it against
// the fixed keyword table.
func (l *Lexer) readIdentifier() token.Token {
	start := l.pos
	for isIdentPart(l.cur()) {
		l.pos++
	}
	text := l.source[start:l.pos]
	return token.Token{Kind: token.LookupIdentifier(text), Text: text, Offset: start, Length: len(text)}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
