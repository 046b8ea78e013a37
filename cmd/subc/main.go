// This is the main-driver for our compiler.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/skx/subc/ast"
	"github.com/skx/subc/codegen"
	"github.com/skx/subc/internal/config"
	"github.com/skx/subc/internal/diag"
	"github.com/skx/subc/lexer"
	"github.com/skx/subc/parser"
	"github.com/skx/subc/token"
)

func main() {

	//
	// Look for flags.
	//
	output := flag.String("o", "a.out", "The name of the binary to produce.")
	assemble := flag.Bool("c", false, "Assemble the generated code, via the configured assembler.")
	runBinary := flag.Bool("run", false, "Assemble and run the binary, post-compile.")
	emitAsm := flag.Bool("S", false, "Print the generated assembly to STDOUT (the default if neither -c nor -run is given).")
	debug := flag.Bool("debug", false, "Enable the code generator's internal block-nesting check (the generated code is unchanged).")
	dumpTokens := flag.Bool("dump-tokens", false, "Print the token stream and exit.")
	dumpAST := flag.Bool("dump-ast", false, "Print the parsed syntax tree and exit.")
	flag.Parse()

	//
	// Running implies assembling.
	//
	if *runBinary {
		*assemble = true
	}

	//
	// Ensure we have a single source file as our argument.
	//
	if len(flag.Args()) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: subc [flags] file.c\n")
		os.Exit(1)
	}
	path := flag.Args()[0]

	source, err := os.ReadFile(path) // #nosec G304 -- user-supplied path is the whole point of a compiler CLI
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %s\n", path, err)
		os.Exit(1)
	}
	src := string(source)

	//
	// Load the optional config file; defaults are used if it's absent.
	//
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %s\n", err)
		os.Exit(1)
	}
	if cfg.Debug.Enabled {
		*debug = true
	}

	//
	// Lex.
	//
	toks, err := lexer.Tokenize(src)
	if err != nil {
		reportDiag(src, err)
		os.Exit(1)
	}
	if *dumpTokens {
		dumpTokenStream(toks)
		return
	}

	//
	// Parse.
	//
	prog, err := parser.Parse(toks)
	if err != nil {
		reportDiag(src, err)
		os.Exit(1)
	}
	if *dumpAST {
		dumpProgram(prog)
		return
	}

	//
	// Generate.
	//
	asm, err := codegen.Generate(prog, *debug)
	if err != nil {
		reportDiag(src, err)
		os.Exit(1)
	}

	//
	// If we're neither assembling nor running, print the assembly and
	// stop: this is also what -S requests explicitly.
	//
	if !*assemble && !*runBinary {
		fmt.Print(asm)
		return
	}
	if *emitAsm {
		fmt.Print(asm)
	}

	//
	// Assemble, via the configured assembler (gcc by default), piping
	// the generated assembly in on STDIN.
	//
	args := append([]string{}, cfg.Build.AssemblerFlags...)
	args = append(args, "-o", *output, "-x", "assembler", "-")
	asmCmd := exec.Command(cfg.Build.Assembler, args...) // #nosec G204 -- assembler name/flags are operator-controlled config, not attacker input

	var buf bytes.Buffer
	buf.WriteString(asm)
	asmCmd.Stdin = &buf
	asmCmd.Stdout = os.Stdout
	asmCmd.Stderr = os.Stderr

	if err := asmCmd.Run(); err != nil {
		fmt.Printf("Error running %s: %s\n", cfg.Build.Assembler, err)
		os.Exit(1)
	}

	//
	// Run the binary too?
	//
	if *runBinary {
		// A bare file name would be looked up in $PATH, not the
		// current directory.
		bin := *output
		if filepath.Base(bin) == bin {
			bin = "./" + bin
		}
		exe := exec.Command(bin) // #nosec G204 -- the binary we just produced
		exe.Stdout = os.Stdout
		exe.Stderr = os.Stderr
		if err := exe.Run(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				os.Exit(exitErr.ExitCode())
			}
			fmt.Printf("Error launching %s: %s\n", *output, err)
			os.Exit(1)
		}
	}
}

// reportDiag renders a lex/parse/codegen error the way the original
// implementation's error_at() does, via internal/diag.
func reportDiag(source string, err error) {
	if derr, ok := err.(*diag.Error); ok {
		fmt.Fprint(os.Stderr, diag.Render(source, derr))
		return
	}
	fmt.Fprintf(os.Stderr, "%s\n", err)
}

func dumpTokenStream(toks []token.Token) {
	for _, tok := range toks {
		fmt.Printf("%-10s %-8q offset=%d\n", tok.Kind, tok.Text, tok.Offset)
	}
}

func dumpProgram(prog *ast.Program) {
	for _, fn := range prog.Functions {
		fmt.Printf("func %s(", fn.Name)
		for i, p := range fn.Params {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Printf("%s@%d", p.Name, p.Offset)
		}
		fmt.Printf(") stack=%d\n", fn.StackSize)
		for _, stmt := range fn.Body {
			dumpNode(stmt, 1)
		}
	}
}

func dumpNode(node ast.Node, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}

	switch n := node.(type) {
	case *ast.Num:
		fmt.Printf("%sNum %d\n", indent, n.Value)
	case *ast.SizeOf:
		fmt.Printf("%sSizeOf %d\n", indent, n.Value)
	case *ast.String:
		fmt.Printf("%sString %q\n", indent, n.Value)
	case *ast.LVar:
		fmt.Printf("%sLVar %s@%d\n", indent, n.Name, n.Offset)
	case *ast.Binary:
		fmt.Printf("%sBinary op=%d\n", indent, n.Op)
		dumpNode(n.LHS, depth+1)
		dumpNode(n.RHS, depth+1)
	case *ast.Assign:
		fmt.Printf("%sAssign\n", indent)
		dumpNode(n.LHS, depth+1)
		dumpNode(n.RHS, depth+1)
	case *ast.Addr:
		fmt.Printf("%sAddr\n", indent)
		dumpNode(n.Operand, depth+1)
	case *ast.Deref:
		fmt.Printf("%sDeref\n", indent)
		dumpNode(n.Operand, depth+1)
	case *ast.Return:
		fmt.Printf("%sReturn\n", indent)
		dumpNode(n.Value, depth+1)
	case *ast.If:
		fmt.Printf("%sIf\n", indent)
		dumpNode(n.Cond, depth+1)
		dumpNode(n.Then, depth+1)
		if n.Else != nil {
			dumpNode(n.Else, depth+1)
		}
	case *ast.While:
		fmt.Printf("%sWhile\n", indent)
		dumpNode(n.Cond, depth+1)
		dumpNode(n.Body, depth+1)
	case *ast.For:
		fmt.Printf("%sFor\n", indent)
		if n.Init != nil {
			dumpNode(n.Init, depth+1)
		}
		if n.Cond != nil {
			dumpNode(n.Cond, depth+1)
		}
		if n.Inc != nil {
			dumpNode(n.Inc, depth+1)
		}
		dumpNode(n.Body, depth+1)
	case *ast.Block:
		fmt.Printf("%sBlock\n", indent)
		for _, s := range n.Stmts {
			dumpNode(s, depth+1)
		}
	case *ast.FunCall:
		fmt.Printf("%sFunCall %s\n", indent, n.Name)
		for _, a := range n.Args {
			dumpNode(a, depth+1)
		}
	}
}
