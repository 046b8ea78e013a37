// Package parser implements the recursive-descent, precedence-climbing
// parser described in spec.md §4.2. It consumes a token.Token sequence and
// produces an *ast.Program, resolving identifiers to stack offsets as it
// goes.
package parser

import (
	"github.com/skx/subc/ast"
	"github.com/skx/subc/internal/diag"
	"github.com/skx/subc/token"
)

// maxCallArgs is the maximum number of arguments a FunCall may carry: the
// System V AMD64 calling convention only has six integer argument
// registers, and spec.md requires rejecting extras at parse time rather
// than silently dropping them at codegen (the original implementation's
// behavior, flagged there as a bug).
const maxCallArgs = 6

// Parser holds all state for a single parse. There are no package-level
// globals: the token cursor, the current function's locals list, and the
// string-label counter are all fields here, per spec.md §9's design note.
type Parser struct {
	tokens   []token.Token
	pos      int
	locals   *ast.Local // current function's locals list; reset per function
	strLabel int        // next string-literal label index, first-seen order
}

// New creates a Parser over a token sequence produced by the lexer.
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses the entire token sequence into a Program.
func Parse(tokens []token.Token) (*ast.Program, error) {
	p := New(tokens)
	return p.Parse()
}

// Parse is the entry point: program = function*.
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	for !p.atEOF() {
		fn, err := p.function()
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

func (p *Parser) cur() token.Token {
	return p.tokens[p.pos]
}

func (p *Parser) atEOF() bool {
	return p.cur().Kind == token.EOF
}

func (p *Parser) advance() token.Token {
	t := p.tokens[p.pos]
	if t.Kind != token.EOF {
		p.pos++
	}
	return t
}

// consume advances past the current token if it has the given kind,
// reporting whether it did.
func (p *Parser) consume(kind token.Kind) bool {
	if p.cur().Kind != kind {
		return false
	}
	p.advance()
	return true
}

// expect consumes a token of the given kind or returns a parse error.
func (p *Parser) expect(kind token.Kind) error {
	if p.cur().Kind != kind {
		return p.errorf("Expected %q but found %q", kind, p.cur().Kind)
	}
	p.advance()
	return nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return diag.NewParseError(p.cur().Offset, format, args...)
}

// consumeIdent consumes an IDENT token, if present.
func (p *Parser) consumeIdent() (token.Token, bool) {
	if p.cur().Kind != token.IDENT {
		return token.Token{}, false
	}
	return p.advance(), true
}

// findLocal does a first-match linear lookup over the current function's
// locals list.
func (p *Parser) findLocal(name string) *ast.Local {
	for l := p.locals; l != nil; l = l.Next {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// newLocal introduces a new local, offset 8 past the current head (or 8 if
// the list is empty), and pushes it onto the head of the list.
func (p *Parser) newLocal(name string) *ast.Local {
	offset := 8
	if p.locals != nil {
		offset = p.locals.Offset + 8
	}
	l := &ast.Local{Name: name, Offset: offset, Next: p.locals}
	p.locals = l
	return l
}

// resolveIdent implements spec.md's deliberate implicit-declaration policy:
// an identifier used in an expression that isn't yet a known local is
// introduced as one at first use. This is non-standard for a C-like
// language; it is preserved here only for compatibility with spec.md's
// documented behavior.
func (p *Parser) resolveIdent(name string) *ast.Local {
	if l := p.findLocal(name); l != nil {
		return l
	}
	return p.newLocal(name)
}

// parseType consumes a type keyword followed by zero or more `*`s, and
// returns the size the language associates with it: 8 for int or any
// pointer type, 1 for a bare char. This is also used by sizeof, where the
// same mandatory-base-keyword-then-stars shape applies.
func (p *Parser) parseType() (int, error) {
	var size int
	switch {
	case p.consume(token.INT):
		size = 8
	case p.consume(token.CHAR):
		size = 1
	case p.consume(token.VOID):
		size = 8
	default:
		return 0, p.errorf("Expected a type name but found %q", p.cur().Kind)
	}

	for p.consume(token.ASTERISK) {
		size = 8
	}
	return size, nil
}

// function = type ident "(" params? ")" "{" stmt* "}"
func (p *Parser) function() (*ast.Function, error) {
	p.locals = nil

	if _, err := p.parseType(); err != nil {
		return nil, err
	}

	nameTok, ok := p.consumeIdent()
	if !ok {
		return nil, p.errorf("Expected a function name")
	}

	fn := &ast.Function{Name: nameTok.Text}

	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.parseParams(fn); err != nil {
		return nil, err
	}

	if err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	for !p.consume(token.RBRACE) {
		s, err := p.stmt()
		if err != nil {
			return nil, err
		}
		fn.Body = append(fn.Body, s)
	}

	if p.locals != nil {
		fn.StackSize = p.locals.Offset
	}

	return fn, nil
}

// params = param ("," param)*
// param  = type ident
//
// spec.md's Open Questions resolve the original's "type optional after the
// first parameter" as a bug; a type keyword is required on every
// parameter here.
func (p *Parser) parseParams(fn *ast.Function) error {
	if p.consume(token.RPAREN) {
		return nil
	}

	for {
		if _, err := p.parseType(); err != nil {
			return err
		}
		nameTok, ok := p.consumeIdent()
		if !ok {
			return p.errorf("Expected a parameter name")
		}

		local := p.newLocal(nameTok.Text)
		fn.Params = append(fn.Params, &ast.LVar{Name: local.Name, Offset: local.Offset})

		if !p.consume(token.COMMA) {
			break
		}
	}

	return p.expect(token.RPAREN)
}

// stmt = "return" expr ";"
//      | "if" "(" expr ")" stmt ("else" stmt)?
//      | "while" "(" expr ")" stmt
//      | "for" "(" expr? ";" expr? ";" expr? ")" stmt
//      | "{" stmt* "}"
//      | type ident ";"
//      | expr ";"
func (p *Parser) stmt() (ast.Node, error) {
	switch {
	case p.consume(token.RETURN):
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.SEMI); err != nil {
			return nil, err
		}
		return &ast.Return{Value: v}, nil

	case p.consume(token.IF):
		return p.ifStmt()

	case p.consume(token.WHILE):
		return p.whileStmt()

	case p.consume(token.FOR):
		return p.forStmt()

	case p.consume(token.LBRACE):
		return p.block()
	}

	if token.IsTypeKeyword(p.cur().Kind) {
		return p.declaration()
	}

	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Parser) ifStmt() (ast.Node, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	then, err := p.stmt()
	if err != nil {
		return nil, err
	}

	node := &ast.If{Cond: cond, Then: then}
	if p.consume(token.ELSE) {
		els, err := p.stmt()
		if err != nil {
			return nil, err
		}
		node.Else = els
	}
	return node, nil
}

func (p *Parser) whileStmt() (ast.Node, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.stmt()
	if err != nil {
		return nil, err
	}
	return &ast.While{Cond: cond, Body: body}, nil
}

func (p *Parser) forStmt() (ast.Node, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}

	node := &ast.For{}

	if !p.consume(token.SEMI) {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		node.Init = e
		if err := p.expect(token.SEMI); err != nil {
			return nil, err
		}
	}

	if !p.consume(token.SEMI) {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		node.Cond = e
		if err := p.expect(token.SEMI); err != nil {
			return nil, err
		}
	}

	if !p.consume(token.RPAREN) {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		node.Inc = e
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
	}

	body, err := p.stmt()
	if err != nil {
		return nil, err
	}
	node.Body = body
	return node, nil
}

func (p *Parser) block() (ast.Node, error) {
	node := &ast.Block{}
	for !p.consume(token.RBRACE) {
		s, err := p.stmt()
		if err != nil {
			return nil, err
		}
		node.Stmts = append(node.Stmts, s)
	}
	return node, nil
}

// declaration = type ident ";"
//
// No code is emitted for a declaration; it only enters the identifier into
// the locals table. Per spec.md, the parser represents it as a no-op
// Num(0) node.
func (p *Parser) declaration() (ast.Node, error) {
	if _, err := p.parseType(); err != nil {
		return nil, err
	}
	nameTok, ok := p.consumeIdent()
	if !ok {
		return nil, p.errorf("Expected an identifier in declaration")
	}
	if p.findLocal(nameTok.Text) == nil {
		p.newLocal(nameTok.Text)
	}
	if err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return &ast.Num{Value: 0}, nil
}

// expr = assign
func (p *Parser) expr() (ast.Node, error) {
	return p.assign()
}

// assign = equality ("=" assign)?   (right-associative)
func (p *Parser) assign() (ast.Node, error) {
	node, err := p.equality()
	if err != nil {
		return nil, err
	}
	if p.consume(token.ASSIGN) {
		rhs, err := p.assign()
		if err != nil {
			return nil, err
		}
		return &ast.Assign{LHS: node, RHS: rhs}, nil
	}
	return node, nil
}

// equality = relational (("==" | "!=") relational)*
func (p *Parser) equality() (ast.Node, error) {
	node, err := p.relational()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.consume(token.EQ):
			node, err = p.binaryRHS(ast.Eq, node, p.relational)
		case p.consume(token.NE):
			node, err = p.binaryRHS(ast.Ne, node, p.relational)
		default:
			return node, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// relational = add (("<" | "<=" | ">" | ">=") add)*
//
// `a > b` rewrites to `b < a`; `a >= b` rewrites to `b <= a` — Gt/Ge never
// appear as node kinds, per spec.md.
func (p *Parser) relational() (ast.Node, error) {
	node, err := p.add()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.consume(token.LT):
			node, err = p.binaryRHS(ast.Lt, node, p.add)
		case p.consume(token.LE):
			node, err = p.binaryRHS(ast.Le, node, p.add)
		case p.consume(token.GT):
			var rhs ast.Node
			rhs, err = p.add()
			if err == nil {
				node = &ast.Binary{Op: ast.Lt, LHS: rhs, RHS: node}
			}
		case p.consume(token.GE):
			var rhs ast.Node
			rhs, err = p.add()
			if err == nil {
				node = &ast.Binary{Op: ast.Le, LHS: rhs, RHS: node}
			}
		default:
			return node, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// add = mul (("+" | "-") mul)*
func (p *Parser) add() (ast.Node, error) {
	node, err := p.mul()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.consume(token.PLUS):
			node, err = p.binaryRHS(ast.Add, node, p.mul)
		case p.consume(token.MINUS):
			node, err = p.binaryRHS(ast.Sub, node, p.mul)
		default:
			return node, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// mul = unary (("*" | "/" | "%") unary)*
func (p *Parser) mul() (ast.Node, error) {
	node, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.consume(token.ASTERISK):
			node, err = p.binaryRHS(ast.Mul, node, p.unary)
		case p.consume(token.SLASH):
			node, err = p.binaryRHS(ast.Div, node, p.unary)
		case p.consume(token.PERCENT):
			node, err = p.binaryRHS(ast.Mod, node, p.unary)
		default:
			return node, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// binaryRHS parses the right-hand operand of a left-associative binary
// operator chain via next, folding it onto lhs.
func (p *Parser) binaryRHS(op ast.BinOp, lhs ast.Node, next func() (ast.Node, error)) (ast.Node, error) {
	rhs, err := next()
	if err != nil {
		return nil, err
	}
	return &ast.Binary{Op: op, LHS: lhs, RHS: rhs}, nil
}

// unary = ("+" | "-" | "*" | "&") unary | postfix
func (p *Parser) unary() (ast.Node, error) {
	switch {
	case p.consume(token.PLUS):
		return p.unary()

	case p.consume(token.MINUS):
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: ast.Sub, LHS: &ast.Num{Value: 0}, RHS: operand}, nil

	case p.consume(token.ASTERISK):
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.Deref{Operand: operand}, nil

	case p.consume(token.AMP):
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.Addr{Operand: operand}, nil
	}

	return p.postfix()
}

// postfix = primary ("[" expr "]")*
//
// `a[i]` desugars to `*(a + i)`.
func (p *Parser) postfix() (ast.Node, error) {
	node, err := p.primary()
	if err != nil {
		return nil, err
	}

	for p.consume(token.LBRACKET) {
		idx, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RBRACKET); err != nil {
			return nil, err
		}
		node = &ast.Deref{Operand: &ast.Binary{Op: ast.Add, LHS: node, RHS: idx}}
	}

	return node, nil
}

// primary = number
//         | string
//         | ident ("(" (expr ("," expr)*)? ")")?
//         | "(" expr ")"
//         | "sizeof" "(" type ")"
func (p *Parser) primary() (ast.Node, error) {
	switch {
	case p.cur().Kind == token.STRING:
		tok := p.advance()
		decoded := decodeStringEscapes(tok.Text)
		node := &ast.String{Value: decoded, Label: p.strLabel}
		p.strLabel++
		return node, nil

	case p.consume(token.LPAREN):
		node, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return node, nil

	case p.consume(token.SIZEOF):
		if err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		size, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return &ast.SizeOf{Value: size}, nil

	case p.cur().Kind == token.IDENT:
		return p.identOrCall()

	case p.cur().Kind == token.NUMBER:
		tok := p.advance()
		return &ast.Num{Value: tok.IntValue}, nil
	}

	return nil, p.errorf("Unexpected token %q", p.cur().Kind)
}

func (p *Parser) identOrCall() (ast.Node, error) {
	nameTok := p.advance()

	if p.consume(token.LPAREN) {
		call := &ast.FunCall{Name: nameTok.Text}

		if !p.consume(token.RPAREN) {
			for {
				arg, err := p.expr()
				if err != nil {
					return nil, err
				}
				if len(call.Args) >= maxCallArgs {
					return nil, p.errorf("Too many arguments to %q: at most %d are supported", call.Name, maxCallArgs)
				}
				call.Args = append(call.Args, arg)
				if !p.consume(token.COMMA) {
					break
				}
			}
			if err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
		}
		return call, nil
	}

	local := p.resolveIdent(nameTok.Text)
	return &ast.LVar{Name: local.Name, Offset: local.Offset}, nil
}

// decodeStringEscapes converts a raw, delimiter-included token string (as
// produced by the lexer, with `\X` runs left undecoded) into its runtime
// byte value: `\n`, `\t`, `\\`, `\"` decode to the escaped character;
// any other escaped byte becomes itself, literally.
func decodeStringEscapes(raw string) string {
	// Strip the surrounding quotes.
	inner := raw[1 : len(raw)-1]

	out := make([]byte, 0, len(inner))
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c != '\\' || i+1 >= len(inner) {
			out = append(out, c)
			continue
		}
		i++
		switch inner[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case '\\':
			out = append(out, '\\')
		case '"':
			out = append(out, '"')
		default:
			out = append(out, inner[i])
		}
	}
	return string(out)
}
