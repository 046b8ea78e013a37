package lexer

import (
	"testing"

	"github.com/skx/subc/token"
)

// Trivial test of the parsing of numbers and identifiers together.
func TestTokenizeBasic(t *testing.T) {
	input := `int x; x = 42;`

	tests := []struct {
		expectedKind    token.Kind
		expectedLiteral string
	}{
		{token.INT, "int"},
		{token.IDENT, "x"},
		{token.SEMI, ";"},
		{token.IDENT, "x"},
		{token.ASSIGN, "="},
		{token.NUMBER, "42"},
		{token.SEMI, ";"},
		{token.EOF, ""},
	}

	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(toks) != len(tests) {
		t.Fatalf("expected %d tokens, got %d", len(tests), len(toks))
	}

	for i, tt := range tests {
		if toks[i].Kind != tt.expectedKind {
			t.Fatalf("tests[%d] - kind wrong, expected=%q, got=%q", i, tt.expectedKind, toks[i].Kind)
		}
		if toks[i].Text != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong, expected=%q, got=%q", i, tt.expectedLiteral, toks[i].Text)
		}
	}
}

// Trivial test of the two-character-before-one-character operator rule.
func TestTokenizeOperators(t *testing.T) {
	input := `== != <= >= < > = + - * / %`

	tests := []token.Kind{
		token.EQ, token.NE, token.LE, token.GE, token.LT, token.GT,
		token.ASSIGN, token.PLUS, token.MINUS, token.ASTERISK, token.SLASH, token.PERCENT,
		token.EOF,
	}

	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for i, want := range tests {
		if toks[i].Kind != want {
			t.Fatalf("tests[%d] - kind wrong, expected=%q, got=%q", i, want, toks[i].Kind)
		}
	}
}

func TestTokenizeString(t *testing.T) {
	toks, err := Tokenize(`"hi\n"`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if toks[0].Kind != token.STRING {
		t.Fatalf("expected a STRING token, got %q", toks[0].Kind)
	}
	if toks[0].Text != `"hi\n"` {
		t.Fatalf("expected the raw delimited text, got %q", toks[0].Text)
	}
}

func TestTokenizeUnclosedString(t *testing.T) {
	_, err := Tokenize(`"unterminated`)
	if err == nil {
		t.Fatalf("expected an error for an unclosed string literal")
	}
}

func TestTokenizeUnclosedBlockComment(t *testing.T) {
	_, err := Tokenize(`1 + /* oops`)
	if err == nil {
		t.Fatalf("expected an error for an unclosed block comment")
	}
}

func TestTokenizeComments(t *testing.T) {
	input := "1 // line comment\n+ /* block\ncomment */ 2"

	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	want := []token.Kind{token.NUMBER, token.PLUS, token.NUMBER, token.EOF}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(toks), toks)
	}
	for i, w := range want {
		if toks[i].Kind != w {
			t.Fatalf("tests[%d] - kind wrong, expected=%q, got=%q", i, w, toks[i].Kind)
		}
	}
}

func TestTokenizeInvalidByte(t *testing.T) {
	_, err := Tokenize(`3 $ 4`)
	if err == nil {
		t.Fatalf("expected an error for an invalid token")
	}
}

func TestTokenizeKeywords(t *testing.T) {
	input := "return if else while for int char void sizeof"
	want := []token.Kind{
		token.RETURN, token.IF, token.ELSE, token.WHILE, token.FOR,
		token.INT, token.CHAR, token.VOID, token.SIZEOF, token.EOF,
	}

	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for i, w := range want {
		if toks[i].Kind != w {
			t.Fatalf("tests[%d] - kind wrong, expected=%q, got=%q", i, w, toks[i].Kind)
		}
	}
}
