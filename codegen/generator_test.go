package codegen

import (
	"strings"
	"testing"

	"github.com/skx/subc/ast"
	"github.com/skx/subc/lexer"
	"github.com/skx/subc/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) string {
	t.Helper()
	toks, err := lexer.Tokenize(src)
	require.NoError(t, err)
	prog, err := parser.Parse(toks)
	require.NoError(t, err)
	out, err := Generate(prog, false)
	require.NoError(t, err)
	return out
}

func TestGeneratePreambleAndSections(t *testing.T) {
	out := compile(t, `int main() { return 0; }`)
	lines := strings.Split(out, "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, ".intel_syntax noprefix", lines[0])
	assert.Contains(t, out, ".data\n")
	assert.Contains(t, out, ".text\n")
}

// Greatest-common-divisor: exercises while, modulo, and parameter passing.
// GCD(48, 18) == 6.
func TestGenerateGCDShape(t *testing.T) {
	out := compile(t, `
int gcd(int a, int b) {
    int temp;
    while (b != 0) {
        temp = b;
        b = a % b;
        a = temp;
    }
    return a;
}

int main() {
    return gcd(48, 18);
}
`)
	assert.Contains(t, out, ".globl gcd")
	assert.Contains(t, out, ".globl main")
	assert.Contains(t, out, ".L.begin.0:")
	assert.Contains(t, out, ".L.end.0:")
	assert.Contains(t, out, "  idiv rcx")
	assert.Contains(t, out, "  mov rax, rdx") // modulo leaves remainder in rdx
	assert.Contains(t, out, ".L.return.gcd:")
	assert.Contains(t, out, ".L.return.main:")
}

// Recursive fibonacci: exercises if/else-less if, recursive calls, and a
// for loop with all three clauses present.
func TestGenerateFibonacciShape(t *testing.T) {
	out := compile(t, `
int fib(int n) {
    if (n <= 1)
        return n;
    return fib(n - 1) + fib(n - 2);
}

int main() {
    int i;
    int result;

    for (i = 0; i < 10; i = i + 1) {
        result = fib(i);
    }

    return result;
}
`)
	assert.Contains(t, out, "  setle al")
	assert.Contains(t, out, "  call fib")
	// Each of the three call sites (fib(n-1) and fib(n-2) in fib, fib(i) in
	// main) emits two "call fib" instructions: one per branch of the
	// stack-alignment check.
	assert.Equal(t, 6, strings.Count(out, "  call fib"), "three call sites, each wrapped in the alignment check")
	assert.Contains(t, out, ".L.begin.") // the for loop's label
	require.Contains(t, out, "  sub rsp, 8\n  mov rax, 0\n  call fib", "every call site must include the stack-alignment fallback")
}

// Pointer manipulation: exercises address-of, dereference, and
// dereference-as-lvalue assignment.
func TestGeneratePointersShape(t *testing.T) {
	out := compile(t, `
int main() {
    int x;
    int y;
    int *p;
    int *q;

    x = 10;
    y = 20;

    p = &x;
    q = &y;

    *p = *p + *q;

    return x;
}
`)
	// &x: gen_lval then pop into rax, no further dereference.
	assert.Contains(t, out, "  mov rax, rbp")
	assert.Contains(t, out, "  sub rax, ")

	// *p = ...: the lhs of the assign must be a deref target, which means
	// the generator evaluates p itself (loads the pointer value) rather
	// than taking its address.
	assert.Contains(t, out, "  mov [rdi], rax")
}

// sizeof folds to a constant at parse time; codegen treats it exactly like
// a Num literal.
func TestGenerateSizeofFoldsToMovImmediate(t *testing.T) {
	out := compile(t, `int main() { return sizeof(int); }`)
	assert.Contains(t, out, "  mov rax, 8")
}

func TestGenerateStringLiteralEmission(t *testing.T) {
	out := compile(t, `int main() { return puts("hi\n"); }`)
	assert.Contains(t, out, ".LC0:")
	assert.Contains(t, out, `  .string "hi\n"`)
	assert.Contains(t, out, "  lea rax, [rip + .LC0]")
}

// `a > b` and `a >= b` are rewritten at parse time, so codegen only ever
// emits setl/setle, never a "greater" variant.
func TestGenerateComparisonInversion(t *testing.T) {
	out := compile(t, `int main() { return 1 > 2; }`)
	assert.Contains(t, out, "  setl al")
	assert.NotContains(t, out, "setg")

	out = compile(t, `int main() { return 1 >= 2; }`)
	assert.Contains(t, out, "  setle al")
	assert.NotContains(t, out, "setge")
}

func TestGenerateEveryCallSiteHasAlignmentPrelude(t *testing.T) {
	out := compile(t, `int main() { return f(); }`)
	assert.Contains(t, out, "  and rax, 15")
	assert.Contains(t, out, "  jnz .L.call.")
}

func TestGenerateFunctionHasSingleReturnLabel(t *testing.T) {
	out := compile(t, `int main() { if (1) { return 1; } return 2; }`)
	assert.Equal(t, 1, strings.Count(out, ".L.return.main:"))
	assert.Equal(t, 1, strings.Count(out, "  ret\n"))
}

func TestGenerateDebugModeBalancedBlocksDoesNotPanic(t *testing.T) {
	toks, err := lexer.Tokenize(`int main() { if (1) { while (1) { for (;;) { return 1; } } } return 0; }`)
	require.NoError(t, err)
	prog, err := parser.Parse(toks)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, err := Generate(prog, true)
		require.NoError(t, err)
	})
}

func TestGenerateRejectsAddressOfNonLvalue(t *testing.T) {
	toks, err := lexer.Tokenize(`int main() { return 1; }`)
	require.NoError(t, err)
	prog, err := parser.Parse(toks)
	require.NoError(t, err)

	// Construct an AST violation directly, since the parser never
	// produces an Addr over a non-lvalue: &1 is a codegen-level invariant
	// error, not a parse error.
	prog.Functions[0].Body[0] = &ast.Return{Value: &ast.Addr{Operand: &ast.Num{Value: 1}}}

	_, err = Generate(prog, false)
	require.Error(t, err)
}
