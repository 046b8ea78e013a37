// Package codegen walks an *ast.Program and emits Intel-syntax x86-64
// assembly for the System V AMD64 calling convention, following the
// stack-machine model described in spec.md §4.3: every expression leaves
// its result in rax, and intermediate values are pushed to the hardware
// stack rather than tracked in a register allocator.
package codegen

import (
	"fmt"
	"strings"

	"github.com/skx/subc/ast"
	"github.com/skx/subc/internal/diag"
	"github.com/skx/subc/stack"
)

// argRegs holds the six integer argument registers, in calling-convention
// order.
var argRegs = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

// Generator holds all state for a single code-generation pass: the output
// buffer, the function currently being emitted, the monotonic label
// counter, and (in debug mode) a block-nesting stack. There are no
// package-level globals, per spec.md §9's design note.
type Generator struct {
	out         strings.Builder
	labelSeq    int
	currentFunc string
	debug       bool
	blocks      *stack.Stack // only used when debug is true
}

// New creates a Generator. When debug is true, every If/While/For/Block
// entered pushes a label onto an internal stack and pops it on exit,
// panicking if a function's body doesn't leave the stack exactly as it
// found it. This is a debugging aid for codegen development itself, not a
// compiler-output feature.
func New(debug bool) *Generator {
	g := &Generator{debug: debug}
	if debug {
		g.blocks = stack.New()
	}
	return g
}

// Generate runs a single Generator pass over prog and returns the
// assembled output.
func Generate(prog *ast.Program, debug bool) (string, error) {
	g := New(debug)
	if err := g.Generate(prog); err != nil {
		return "", err
	}
	return g.out.String(), nil
}

// Generate emits the full assembly listing for prog: the Intel-syntax
// directive, the .data section (every string literal collected by a
// depth-first walk of every function body), then .text with one emitted
// function per ast.Function.
func (g *Generator) Generate(prog *ast.Program) error {
	g.emit(".intel_syntax noprefix")

	g.genStrings(prog)

	g.emit(".text")
	for _, fn := range prog.Functions {
		if err := g.genFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) emit(format string, args ...interface{}) {
	fmt.Fprintf(&g.out, format+"\n", args...)
}

func (g *Generator) nextLabel() int {
	seq := g.labelSeq
	g.labelSeq++
	return seq
}

// genStrings collects every string literal reachable from any function
// body and emits it as a .string directive addressed by its parse-time
// label. The collection order doesn't need to match source order: each
// literal's label was already fixed when the parser first saw it, so any
// traversal that visits every node once is correct.
func (g *Generator) genStrings(prog *ast.Program) {
	g.emit(".data")

	var literals []*ast.String
	for _, fn := range prog.Functions {
		for _, stmt := range fn.Body {
			collectStrings(stmt, &literals)
		}
	}

	for _, s := range literals {
		g.emit(".LC%d:", s.Label)
		g.emit("  .string \"%s\"", escapeForAssembler(s.Value))
	}
}

// collectStrings appends every *ast.String reachable from node, in
// whatever order its children happen to be visited.
func collectStrings(node ast.Node, into *[]*ast.String) {
	switch n := node.(type) {
	case nil:
		return
	case *ast.String:
		*into = append(*into, n)
	case *ast.Binary:
		collectStrings(n.LHS, into)
		collectStrings(n.RHS, into)
	case *ast.Assign:
		collectStrings(n.LHS, into)
		collectStrings(n.RHS, into)
	case *ast.Addr:
		collectStrings(n.Operand, into)
	case *ast.Deref:
		collectStrings(n.Operand, into)
	case *ast.Return:
		collectStrings(n.Value, into)
	case *ast.If:
		collectStrings(n.Cond, into)
		collectStrings(n.Then, into)
		collectStrings(n.Else, into)
	case *ast.While:
		collectStrings(n.Cond, into)
		collectStrings(n.Body, into)
	case *ast.For:
		collectStrings(n.Init, into)
		collectStrings(n.Cond, into)
		collectStrings(n.Inc, into)
		collectStrings(n.Body, into)
	case *ast.Block:
		for _, s := range n.Stmts {
			collectStrings(s, into)
		}
	case *ast.FunCall:
		for _, a := range n.Args {
			collectStrings(a, into)
		}
	}
}

// escapeForAssembler renders a decoded string literal's runtime bytes back
// into the escaped form the assembler's .string directive expects.
func escapeForAssembler(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			sb.WriteString("\\n")
		case '\t':
			sb.WriteString("\\t")
		case '\\':
			sb.WriteString("\\\\")
		case '"':
			sb.WriteString("\\\"")
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// genFunction emits one function's prologue, parameter-save sequence,
// body, and epilogue.
func (g *Generator) genFunction(fn *ast.Function) error {
	g.currentFunc = fn.Name

	g.emit(".globl %s", fn.Name)
	g.emit("%s:", fn.Name)

	g.emit("  push rbp")
	g.emit("  mov rbp, rsp")
	g.emit("  sub rsp, %d", fn.StackSize)

	for i, p := range fn.Params {
		if i >= len(argRegs) {
			break
		}
		g.emit("  mov [rbp-%d], %s", p.Offset, argRegs[i])
	}

	for _, stmt := range fn.Body {
		if err := g.genNode(stmt); err != nil {
			return err
		}
	}

	if g.debug && !g.blocks.Empty() {
		panic(fmt.Sprintf("codegen: unbalanced block nesting at end of %s", fn.Name))
	}

	g.emit(".L.return.%s:", fn.Name)
	g.emit("  mov rsp, rbp")
	g.emit("  pop rbp")
	g.emit("  ret")

	return nil
}

// genLval emits the address of an lvalue onto the stack. An LVar and a
// Deref are the valid lvalues (a Deref's address is the value of its
// operand); anything else is a malformed-AST codegen error.
func (g *Generator) genLval(node ast.Node) error {
	switch n := node.(type) {
	case *ast.LVar:
		g.emit("  mov rax, rbp")
		g.emit("  sub rax, %d", n.Offset)
		g.emit("  push rax")
		return nil
	case *ast.Deref:
		if err := g.genNode(n.Operand); err != nil {
			return err
		}
		g.emit("  push rax")
		return nil
	}
	return diag.NewCodegenError("not an lvalue")
}

// pushBlock and popBlock implement the optional debug-mode block-nesting
// assertion: every If/While/For/Block pushes its kind name on entry and
// pops it on exit, so an implementation bug that exits a block generation
// method without fully closing it surfaces as a panic instead of silently
// malformed assembly.
func (g *Generator) pushBlock(kind string) {
	if g.debug {
		g.blocks.Push(kind)
	}
}

func (g *Generator) popBlock(kind string) {
	if !g.debug {
		return
	}
	got, err := g.blocks.Pop()
	if err != nil {
		panic(fmt.Sprintf("codegen: block-nesting stack empty closing %s", kind))
	}
	if got != kind {
		panic(fmt.Sprintf("codegen: block-nesting mismatch: opened %s, closed %s", got, kind))
	}
}

// genNode emits code for a single statement or expression node. On return,
// an expression's value is in rax.
func (g *Generator) genNode(node ast.Node) error {
	switch n := node.(type) {
	case *ast.Num:
		g.emit("  mov rax, %d", n.Value)
		return nil

	case *ast.SizeOf:
		g.emit("  mov rax, %d", n.Value)
		return nil

	case *ast.String:
		g.emit("  lea rax, [rip + .LC%d]", n.Label)
		return nil

	case *ast.LVar:
		if err := g.genLval(n); err != nil {
			return err
		}
		g.emit("  pop rax")
		g.emit("  mov rax, [rax]")
		return nil

	case *ast.Assign:
		if err := g.genLval(n.LHS); err != nil {
			return err
		}
		if err := g.genNode(n.RHS); err != nil {
			return err
		}
		g.emit("  pop rdi")
		g.emit("  mov [rdi], rax")
		return nil

	case *ast.Addr:
		if _, ok := n.Operand.(*ast.LVar); !ok {
			return diag.NewCodegenError("address-of a non-variable")
		}
		if err := g.genLval(n.Operand); err != nil {
			return err
		}
		g.emit("  pop rax")
		return nil

	case *ast.Deref:
		if err := g.genNode(n.Operand); err != nil {
			return err
		}
		g.emit("  mov rax, [rax]")
		return nil

	case *ast.Return:
		if err := g.genNode(n.Value); err != nil {
			return err
		}
		g.emit("  jmp .L.return.%s", g.currentFunc)
		return nil

	case *ast.If:
		return g.genIf(n)

	case *ast.While:
		return g.genWhile(n)

	case *ast.For:
		return g.genFor(n)

	case *ast.Block:
		return g.genBlock(n)

	case *ast.FunCall:
		return g.genCall(n)

	case *ast.Binary:
		return g.genBinary(n)
	}

	return diag.NewCodegenError("unhandled node kind %T", node)
}

func (g *Generator) genIf(n *ast.If) error {
	g.pushBlock("if")
	defer g.popBlock("if")

	seq := g.nextLabel()

	if n.Else != nil {
		if err := g.genNode(n.Cond); err != nil {
			return err
		}
		g.emit("  cmp rax, 0")
		g.emit("  je .L.else.%d", seq)
		if err := g.genNode(n.Then); err != nil {
			return err
		}
		g.emit("  jmp .L.end.%d", seq)
		g.emit(".L.else.%d:", seq)
		if err := g.genNode(n.Else); err != nil {
			return err
		}
		g.emit(".L.end.%d:", seq)
		return nil
	}

	if err := g.genNode(n.Cond); err != nil {
		return err
	}
	g.emit("  cmp rax, 0")
	g.emit("  je .L.end.%d", seq)
	if err := g.genNode(n.Then); err != nil {
		return err
	}
	g.emit(".L.end.%d:", seq)
	return nil
}

func (g *Generator) genWhile(n *ast.While) error {
	g.pushBlock("while")
	defer g.popBlock("while")

	seq := g.nextLabel()
	g.emit(".L.begin.%d:", seq)
	if err := g.genNode(n.Cond); err != nil {
		return err
	}
	g.emit("  cmp rax, 0")
	g.emit("  je .L.end.%d", seq)
	if err := g.genNode(n.Body); err != nil {
		return err
	}
	g.emit("  jmp .L.begin.%d", seq)
	g.emit(".L.end.%d:", seq)
	return nil
}

func (g *Generator) genFor(n *ast.For) error {
	g.pushBlock("for")
	defer g.popBlock("for")

	seq := g.nextLabel()

	if n.Init != nil {
		if err := g.genNode(n.Init); err != nil {
			return err
		}
	}

	g.emit(".L.begin.%d:", seq)
	if n.Cond != nil {
		if err := g.genNode(n.Cond); err != nil {
			return err
		}
		g.emit("  cmp rax, 0")
		g.emit("  je .L.end.%d", seq)
	}

	if err := g.genNode(n.Body); err != nil {
		return err
	}
	if n.Inc != nil {
		if err := g.genNode(n.Inc); err != nil {
			return err
		}
	}
	g.emit("  jmp .L.begin.%d", seq)
	g.emit(".L.end.%d:", seq)
	return nil
}

func (g *Generator) genBlock(n *ast.Block) error {
	g.pushBlock("block")
	defer g.popBlock("block")

	for _, s := range n.Stmts {
		if err := g.genNode(s); err != nil {
			return err
		}
	}
	return nil
}

// genCall emits a function call: arguments are evaluated and pushed left to
// right, then popped last-first into their argument registers (so argument
// i lands in argRegs[i]), then the call site is wrapped in the standard
// 16-byte-stack-alignment check (two possible call targets, one with an
// extra 8-byte adjustment) since we cannot know statically whether rsp is
// 16-byte aligned at this point.
func (g *Generator) genCall(n *ast.FunCall) error {
	for _, arg := range n.Args {
		if err := g.genNode(arg); err != nil {
			return err
		}
		g.emit("  push rax")
	}

	for i := len(n.Args) - 1; i >= 0; i-- {
		if i < len(argRegs) {
			g.emit("  pop %s", argRegs[i])
		}
	}

	seq := g.nextLabel()
	g.emit("  mov rax, rsp")
	g.emit("  and rax, 15")
	g.emit("  jnz .L.call.%d", seq)
	g.emit("  mov rax, 0")
	g.emit("  call %s", n.Name)
	g.emit("  jmp .L.callend.%d", seq)
	g.emit(".L.call.%d:", seq)
	g.emit("  sub rsp, 8")
	g.emit("  mov rax, 0")
	g.emit("  call %s", n.Name)
	g.emit("  add rsp, 8")
	g.emit(".L.callend.%d:", seq)
	return nil
}

func (g *Generator) genBinary(n *ast.Binary) error {
	if err := g.genNode(n.LHS); err != nil {
		return err
	}
	g.emit("  push rax")
	if err := g.genNode(n.RHS); err != nil {
		return err
	}
	g.emit("  pop rdi")

	switch n.Op {
	case ast.Add:
		g.emit("  add rax, rdi")
	case ast.Sub:
		g.emit("  sub rdi, rax")
		g.emit("  mov rax, rdi")
	case ast.Mul:
		g.emit("  imul rax, rdi")
	case ast.Div:
		g.emit("  mov rcx, rax")
		g.emit("  mov rax, rdi")
		g.emit("  cqo")
		g.emit("  idiv rcx")
	case ast.Mod:
		g.emit("  mov rcx, rax")
		g.emit("  mov rax, rdi")
		g.emit("  cqo")
		g.emit("  idiv rcx")
		g.emit("  mov rax, rdx")
	case ast.Eq:
		g.emit("  cmp rdi, rax")
		g.emit("  sete al")
		g.emit("  movzx rax, al")
	case ast.Ne:
		g.emit("  cmp rdi, rax")
		g.emit("  setne al")
		g.emit("  movzx rax, al")
	case ast.Lt:
		g.emit("  cmp rdi, rax")
		g.emit("  setl al")
		g.emit("  movzx rax, al")
	case ast.Le:
		g.emit("  cmp rdi, rax")
		g.emit("  setle al")
		g.emit("  movzx rax, al")
	default:
		return diag.NewCodegenError("unhandled binary operator %d", n.Op)
	}
	return nil
}
