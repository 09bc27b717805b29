// Package eval implements the restricted Boolean expression grammar
// step conditions are written in (SPEC_FULL.md §4.1). It is built on
// expr-lang/expr's parser purely for a real AST — not for expr's own
// permissive evaluation semantics — and whitelists node kinds before
// any compilation happens, rejecting call forms, closures, and
// assignments outright.
package eval

import (
	"fmt"

	"github.com/expr-lang/expr/ast"
)

// UnsafeExpressionError reports that an expression's AST contains a
// node kind the whitelist does not permit. It is never returned after
// any evaluation has begun.
type UnsafeExpressionError struct {
	Reason string
}

func (e *UnsafeExpressionError) Error() string { return e.Reason }

// checkWhitelist walks an expr-lang AST and rejects any node kind not
// named in SPEC_FULL.md §4.1's allowed-constructs list. The switch is
// default-deny: an unrecognized node type is rejected, not silently
// allowed, since a future expr-lang node kind should never sneak past
// this gate unreviewed.
func checkWhitelist(node ast.Node) error {
	switch n := node.(type) {
	case nil:
		return nil

	case *ast.NilNode, *ast.IdentifierNode, *ast.IntegerNode,
		*ast.FloatNode, *ast.BoolNode, *ast.StringNode, *ast.ConstantNode:
		return nil

	case *ast.UnaryNode:
		if !allowedUnaryOps[n.Operator] {
			return &UnsafeExpressionError{Reason: fmt.Sprintf("unary operator %q is not permitted", n.Operator)}
		}
		return checkWhitelist(n.Node)

	case *ast.BinaryNode:
		if !allowedBinaryOps[n.Operator] {
			return &UnsafeExpressionError{Reason: fmt.Sprintf("binary operator %q is not permitted", n.Operator)}
		}
		if err := checkWhitelist(n.Left); err != nil {
			return err
		}
		return checkWhitelist(n.Right)

	case *ast.ChainNode:
		return checkWhitelist(n.Node)

	case *ast.MemberNode:
		if err := checkWhitelist(n.Node); err != nil {
			return err
		}
		return checkWhitelist(n.Property)

	case *ast.SliceNode:
		if err := checkWhitelist(n.Node); err != nil {
			return err
		}
		if err := checkWhitelist(n.From); err != nil {
			return err
		}
		return checkWhitelist(n.To)

	case *ast.ArrayNode:
		for _, item := range n.Nodes {
			if err := checkWhitelist(item); err != nil {
				return err
			}
		}
		return nil

	case *ast.MapNode:
		for _, pair := range n.Pairs {
			if err := checkWhitelist(pair); err != nil {
				return err
			}
		}
		return nil

	case *ast.PairNode:
		if err := checkWhitelist(n.Key); err != nil {
			return err
		}
		return checkWhitelist(n.Value)

	case *ast.CallNode:
		return &UnsafeExpressionError{Reason: "function/method calls are not permitted"}

	case *ast.BuiltinNode:
		return &UnsafeExpressionError{Reason: fmt.Sprintf("builtin %q is not permitted", n.Name)}

	case *ast.ClosureNode:
		return &UnsafeExpressionError{Reason: "lambda expressions are not permitted"}

	case *ast.VariableDeclaratorNode:
		return &UnsafeExpressionError{Reason: "variable declarations/assignments are not permitted"}

	case *ast.ConditionalNode:
		return &UnsafeExpressionError{Reason: "conditional (ternary) expressions are not permitted"}

	case *ast.PointerNode:
		return &UnsafeExpressionError{Reason: "pipe placeholders are not permitted"}

	default:
		return &UnsafeExpressionError{Reason: fmt.Sprintf("expression node %T is not permitted", node)}
	}
}

var allowedBinaryOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"and": true, "&&": true, "or": true, "||": true,
	"in": true, "not in": true,
	"+": true, "-": true, "*": true, "/": true, "%": true,
}

var allowedUnaryOps = map[string]bool{
	"not": true, "!": true, "-": true, "+": true,
}
