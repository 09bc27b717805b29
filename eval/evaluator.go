package eval

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Evaluator compiles and runs step conditions against a single bound
// name, "context" (SPEC_FULL.md §4.1). It is safe to share across
// goroutines: the compile cache is guarded by a mutex and compiled
// programs are never mutated after compile.
type Evaluator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

// New constructs an Evaluator with an empty compile cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Eval evaluates expression against contextValue, which must be the
// map SPEC_FULL.md §6's Context serializes to (top-level "data",
// "input", "metadata" keys). It returns a plain bool; any expression
// that is unsafe, fails to parse, fails to compile, or evaluates to a
// non-boolean value is reported as an error rather than coerced.
func (e *Evaluator) Eval(expression string, contextValue map[string]any) (bool, error) {
	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, map[string]any{"context": contextValue})
	if err != nil {
		return false, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean, got %T", expression, out)
	}
	return b, nil
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[expression]; ok {
		return p, nil
	}

	source := preprocess(expression)

	tree, err := parser.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse condition %q: %w", expression, err)
	}
	if err := checkWhitelist(tree.Node); err != nil {
		return nil, fmt.Errorf("condition %q rejected: %w", expression, err)
	}

	program, err := expr.Compile(
		source,
		expr.Env(map[string]any{"context": map[string]any{}}),
		expr.AllowUndefinedVariables(),
		expr.DisableAllBuiltins(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expression, err)
	}

	e.cache[expression] = program
	return program, nil
}

var (
	reIsNotNull = regexp.MustCompile(`\bis\s+not\s+null\b`)
	reIsNull    = regexp.MustCompile(`\bis\s+null\b`)
	// reFloorDiv matches only simple token operands (dotted identifiers,
	// bracket subscripts, numeric literals, or a single parenthesized
	// group) on either side of "//". Nested "//" inside a parenthesized
	// operand is not rewritten by this pass.
	reFloorDiv = regexp.MustCompile(`([\w.\]\[]+|\([^()]*\))\s*//\s*([\w.\]\[]+|\([^()]*\))`)
)

// preprocess rewrites the Python-flavored surface syntax SPEC_FULL.md
// §4.1 documents ("is null", "is not null", "//") into expr-lang's
// native syntax before parsing. Floor division becomes an equivalent
// subtraction/modulo/division expression so no function call needs to
// be introduced downstream of the whitelist.
func preprocess(expression string) string {
	out := reIsNotNull.ReplaceAllString(expression, "!= nil")
	out = reIsNull.ReplaceAllString(out, "== nil")
	for strings.Contains(out, "//") {
		next := reFloorDiv.ReplaceAllString(out, "(($1 - ($1 % $2)) / $2)")
		if next == out {
			break
		}
		out = next
	}
	return out
}
