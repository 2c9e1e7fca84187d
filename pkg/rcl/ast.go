package rcl

import (
	"errors"
	"fmt"
	"strings"
)

// Context holds the named value sections an expression can reference.
// Identifiers are two-part dotted paths: the first segment selects a
// section ("metrics", "segment", "data"), the second a key within it.
//
// Context is not safe for concurrent mutation; build it fully before
// evaluating, after which concurrent reads are safe.
type Context struct {
	sections map[string]map[string]any
}

// NewContext creates an empty evaluation context.
func NewContext() *Context {
	return &Context{sections: make(map[string]map[string]any)}
}

// Set installs (or replaces) a named section. The map is referenced, not
// copied; callers must not mutate it after evaluation starts.
func (c *Context) Set(section string, values map[string]any) {
	c.sections[section] = values
}

// lookup resolves a dotted identifier to a value. The second return is
// false when either the section or the key is absent.
func (c *Context) lookup(section, key string) (any, bool) {
	values, ok := c.sections[section]
	if !ok {
		return nil, false
	}
	v, ok := values[key]
	return v, ok
}

// Expr is a compiled RCL expression. Expressions are immutable and safe
// for concurrent evaluation.
type Expr struct {
	source string
	root   node
}

// Source returns the original expression text.
func (e *Expr) Source() string {
	return e.source
}

// Evaluate evaluates the expression against the context and reduces the
// result to a boolean. Non-boolean results are converted by truthiness:
// undefined is false, any defined value is true. A ConditionError is
// returned for type mismatches and division by zero.
func (e *Expr) Evaluate(ctx *Context) (bool, error) {
	v, err := e.root.eval(ctx)
	if err != nil {
		var cond *ConditionError
		if errors.As(err, &cond) && cond.Expression == "" {
			cond.Expression = e.source
		}
		return false, err
	}
	return v.truthy(), nil
}

// valueKind discriminates the runtime value types an expression can produce.
type valueKind int

const (
	kindUndefined valueKind = iota
	kindNumber
	kindString
	kindBool
)

// value is the runtime result of evaluating a node.
type value struct {
	kind valueKind
	num  float64
	str  string
	b    bool
}

var undefined = value{kind: kindUndefined}

func numberValue(f float64) value { return value{kind: kindNumber, num: f} }
func stringValue(s string) value  { return value{kind: kindString, str: s} }
func boolValue(b bool) value      { return value{kind: kindBool, b: b} }

// truthy reduces a value to a boolean. Undefined is false; a boolean is
// itself; any other defined value is true (presence test).
func (v value) truthy() bool {
	switch v.kind {
	case kindUndefined:
		return false
	case kindBool:
		return v.b
	default:
		return true
	}
}

func (v value) kindName() string {
	switch v.kind {
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindBool:
		return "bool"
	default:
		return "undefined"
	}
}

// node is a single AST node. Nodes are immutable after parsing.
type node interface {
	eval(ctx *Context) (value, error)
}

// identNode resolves a dotted identifier against the context.
type identNode struct {
	section string
	key     string
}

func (n *identNode) eval(ctx *Context) (value, error) {
	raw, ok := ctx.lookup(n.section, n.key)
	if !ok {
		// Missing identifiers are the undefined sentinel, not an error.
		return undefined, nil
	}
	return fromGoValue(raw, n.section+"."+n.key)
}

// fromGoValue converts a context-supplied Go value into an RCL value.
func fromGoValue(raw any, ident string) (value, error) {
	switch v := raw.(type) {
	case float64:
		return numberValue(v), nil
	case float32:
		return numberValue(float64(v)), nil
	case int:
		return numberValue(float64(v)), nil
	case int32:
		return numberValue(float64(v)), nil
	case int64:
		return numberValue(float64(v)), nil
	case uint:
		return numberValue(float64(v)), nil
	case string:
		return stringValue(v), nil
	case bool:
		return boolValue(v), nil
	default:
		return undefined, newConditionError("identifier %q has unsupported type %T", ident, raw)
	}
}

// literalNode holds a parsed literal.
type literalNode struct {
	val value
}

func (n *literalNode) eval(ctx *Context) (value, error) {
	return n.val, nil
}

// arithNode applies +, -, * or / to two numeric operands.
type arithNode struct {
	op          string
	left, right node
}

func (n *arithNode) eval(ctx *Context) (value, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return undefined, err
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return undefined, err
	}

	// Arithmetic over undefined propagates undefined so the enclosing
	// comparison fails closed instead of erroring on absent metrics.
	if l.kind == kindUndefined || r.kind == kindUndefined {
		return undefined, nil
	}
	if l.kind != kindNumber || r.kind != kindNumber {
		return undefined, newConditionError("operator %q requires numbers, got %s and %s", n.op, l.kindName(), r.kindName())
	}

	switch n.op {
	case "+":
		return numberValue(l.num + r.num), nil
	case "-":
		return numberValue(l.num - r.num), nil
	case "*":
		return numberValue(l.num * r.num), nil
	case "/":
		if r.num == 0 {
			return undefined, newConditionError("division by zero")
		}
		return numberValue(l.num / r.num), nil
	default:
		return undefined, newConditionError("unknown arithmetic operator %q", n.op)
	}
}

// compareNode applies a comparison operator to two operands.
type compareNode struct {
	op          string
	left, right node
}

func (n *compareNode) eval(ctx *Context) (value, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return undefined, err
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return undefined, err
	}

	// Comparisons against the undefined sentinel are always false
	// (fail-closed), and != is its negation.
	if l.kind == kindUndefined || r.kind == kindUndefined {
		return boolValue(n.op == "!=" && !(l.kind == kindUndefined && r.kind == kindUndefined)), nil
	}

	switch n.op {
	case "==", "!=":
		eq, err := valuesEqual(l, r)
		if err != nil {
			return undefined, err
		}
		if n.op == "!=" {
			eq = !eq
		}
		return boolValue(eq), nil
	case ">", ">=", "<", "<=":
		return orderedCompare(n.op, l, r)
	default:
		return undefined, newConditionError("unknown comparison operator %q", n.op)
	}
}

// valuesEqual compares two defined values. Values of different kinds are
// never equal (no implicit coercion).
func valuesEqual(l, r value) (bool, error) {
	if l.kind != r.kind {
		return false, nil
	}
	switch l.kind {
	case kindNumber:
		return l.num == r.num, nil
	case kindString:
		return l.str == r.str, nil
	case kindBool:
		return l.b == r.b, nil
	default:
		return false, nil
	}
}

// orderedCompare applies an ordering operator. Numbers compare numerically,
// strings lexicographically; mixing kinds is a ConditionError.
func orderedCompare(op string, l, r value) (value, error) {
	if l.kind != r.kind {
		return undefined, newConditionError("cannot compare %s with %s using %q", l.kindName(), r.kindName(), op)
	}

	var cmp int
	switch l.kind {
	case kindNumber:
		switch {
		case l.num < r.num:
			cmp = -1
		case l.num > r.num:
			cmp = 1
		}
	case kindString:
		cmp = strings.Compare(l.str, r.str)
	default:
		return undefined, newConditionError("operator %q not defined for %s values", op, l.kindName())
	}

	switch op {
	case ">":
		return boolValue(cmp > 0), nil
	case ">=":
		return boolValue(cmp >= 0), nil
	case "<":
		return boolValue(cmp < 0), nil
	case "<=":
		return boolValue(cmp <= 0), nil
	}
	return undefined, newConditionError("unknown ordering operator %q", op)
}

// logicalNode applies and/or with short-circuit semantics.
type logicalNode struct {
	op          string // "and" or "or"
	left, right node
}

func (n *logicalNode) eval(ctx *Context) (value, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return undefined, err
	}

	if n.op == "and" && !l.truthy() {
		return boolValue(false), nil
	}
	if n.op == "or" && l.truthy() {
		return boolValue(true), nil
	}

	r, err := n.right.eval(ctx)
	if err != nil {
		return undefined, err
	}
	return boolValue(r.truthy()), nil
}

// notNode negates its operand's truthiness.
type notNode struct {
	operand node
}

func (n *notNode) eval(ctx *Context) (value, error) {
	v, err := n.operand.eval(ctx)
	if err != nil {
		return undefined, err
	}
	return boolValue(!v.truthy()), nil
}

// String renders the expression source for diagnostics.
func (e *Expr) String() string {
	return fmt.Sprintf("rcl.Expr(%q)", e.source)
}
