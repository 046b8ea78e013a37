// Package diag holds the diagnostic types shared by the lexer, parser, and
// code generator.
//
// There is no multi-error reporting and no recovery anywhere in the core
// pipeline: the first Error produced by any stage is terminal. Kind exists
// so a caller can tell which stage raised it without string-matching the
// message.
package diag

import (
	"fmt"
	"strings"
)

// Kind identifies which pipeline stage raised an Error.
type Kind int

// The three core-pipeline error kinds. Argument and I/O errors are a
// front-end concern and never produce a diag.Error.
const (
	KindLex Kind = iota
	KindParse
	KindCodegen
)

func (k Kind) String() string {
	switch k {
	case KindLex:
		return "lex error"
	case KindParse:
		return "parse error"
	case KindCodegen:
		return "codegen error"
	default:
		return "error"
	}
}

// Position is a byte offset into the source buffer being compiled.
type Position struct {
	Offset int
}

// Error is a fatal diagnostic tied to a position in the source.
type Error struct {
	Pos     Position
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewLexError builds a lex-stage error at offset.
func NewLexError(offset int, format string, args ...interface{}) *Error {
	return &Error{Pos: Position{Offset: offset}, Kind: KindLex, Message: fmt.Sprintf(format, args...)}
}

// NewParseError builds a parse-stage error at offset.
func NewParseError(offset int, format string, args ...interface{}) *Error {
	return &Error{Pos: Position{Offset: offset}, Kind: KindParse, Message: fmt.Sprintf(format, args...)}
}

// NewCodegenError builds a codegen-stage error. Codegen errors have no
// useful source position (they indicate a malformed AST, not a bad token),
// so Render falls back to a single-line message for them.
func NewCodegenError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindCodegen, Message: fmt.Sprintf(format, args...)}
}

// Warning is a non-fatal diagnostic. Nothing in this module produces one:
// lexer/parser/codegen errors are always fatal, and the front end treats a
// config-loading failure as an error too.
type Warning struct {
	Message string
}

func (w *Warning) String() string {
	return w.Message
}

// Render formats err against the full source text, the way the original
// implementation's error_at() does: the entire source on one line, then
// spaces padded out to the offending byte, then a caret, then the message.
// Codegen errors carry no source position and are rendered as a single
// line.
func Render(source string, err *Error) string {
	if err.Kind == KindCodegen {
		return fmt.Sprintf("%s: %s\n", err.Kind, err.Message)
	}

	var sb strings.Builder
	sb.WriteString(source)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat(" ", err.Pos.Offset))
	sb.WriteString("^ ")
	sb.WriteString(err.Message)
	sb.WriteString("\n")
	return sb.String()
}
