package expr

import (
	"fmt"
	"reflect"
	"sync"
	"unicode/utf8"

	"github.com/BaSui01/flowcore/types"
)

// Scope is the read-only view an expression is evaluated against.
type Scope interface {
	// Lookup returns the committed output of a step.
	Lookup(stepID string) (any, bool)
	// Input returns the value the condition step received.
	Input() any
}

// MapScope is a Scope backed by plain values.
type MapScope struct {
	Vars map[string]any
	In   any
}

func (s MapScope) Lookup(id string) (any, bool) {
	v, ok := s.Vars[id]
	return v, ok
}

func (s MapScope) Input() any { return s.In }

// Evaluator compiles and evaluates expressions, caching parsed ASTs by source.
type Evaluator struct {
	cache sync.Map // string -> *Expr
}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Compile parses src, returning a cached AST when one exists.
func (ev *Evaluator) Compile(src string) (*Expr, error) {
	if cached, ok := ev.cache.Load(src); ok {
		return cached.(*Expr), nil
	}
	e, err := Parse(src)
	if err != nil {
		return nil, err
	}
	actual, _ := ev.cache.LoadOrStore(src, e)
	return actual.(*Expr), nil
}

// Evaluate compiles src and evaluates it to a boolean against scope.
func (ev *Evaluator) Evaluate(src string, scope Scope) (bool, error) {
	e, err := ev.Compile(src)
	if err != nil {
		return false, err
	}
	return e.Eval(scope)
}

// Eval evaluates the expression. The result is coerced to bool by truthiness.
func (e *Expr) Eval(scope Scope) (bool, error) {
	v, err := eval(e.root, scope)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Value evaluates the expression without boolean coercion.
func (e *Expr) Value(scope Scope) (any, error) {
	return eval(e.root, scope)
}

func eval(n Node, scope Scope) (any, error) {
	switch n := n.(type) {
	case *Literal:
		return n.Value, nil

	case *Ref:
		return resolveRef(n, scope)

	case *Length:
		v, err := eval(n.Arg, scope)
		if err != nil {
			return nil, err
		}
		l, ok := length(v)
		if !ok {
			return nil, types.Errorf(types.ErrInvalidExpression, "length() of %T", v)
		}
		return float64(l), nil

	case *Not:
		v, err := eval(n.X, scope)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil

	case *Binary:
		return evalBinary(n, scope)

	default:
		return nil, types.Errorf(types.ErrInvalidExpression, "unsupported node %T", n)
	}
}

func evalBinary(n *Binary, scope Scope) (any, error) {
	left, err := eval(n.Left, scope)
	if err != nil {
		return nil, err
	}

	// short circuit
	switch n.Op {
	case "&&":
		if !truthy(left) {
			return false, nil
		}
		right, err := eval(n.Right, scope)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case "||":
		if truthy(left) {
			return true, nil
		}
		right, err := eval(n.Right, scope)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	right, err := eval(n.Right, scope)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case ">", "<", ">=", "<=":
		return compare(n.Op, left, right)
	default:
		return nil, types.Errorf(types.ErrInvalidExpression, "unknown operator %q", n.Op)
	}
}

func resolveRef(r *Ref, scope Scope) (any, error) {
	var cur any
	if r.Root == rootVariables {
		v, ok := scope.Lookup(r.Step)
		if !ok {
			return nil, types.Errorf(types.ErrMissingVariable, "variable %q has not been produced yet", r.Step)
		}
		cur = v
	} else {
		cur = scope.Input()
	}

	for _, field := range r.Path {
		cur = member(cur, field)
	}
	return cur, nil
}

// member reads a field from a map. Missing fields read as null; "length" on a
// value without such a key yields its length.
func member(v any, field string) any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		if got, ok := m[field]; ok {
			return got
		}
	} else {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
			got := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
			if got.IsValid() {
				return got.Interface()
			}
		}
	}
	if field == "length" {
		if l, ok := length(v); ok {
			return float64(l)
		}
	}
	return nil
}

func length(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x), true
	case []any:
		return len(x), true
	case map[string]any:
		return len(x), true
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toNumber(v); ok {
		return f != 0
	}
	if l, ok := length(v); ok {
		return l > 0
	}
	return true
}

// equal never fails: values of different kinds are simply unequal.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toNumber(a); ok {
		fb, ok := toNumber(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two numbers or two strings; anything else is an error.
func compare(op string, a, b any) (bool, error) {
	if fa, ok := toNumber(a); ok {
		if fb, ok := toNumber(b); ok {
			return ordered(op, cmp3(fa, fb)), nil
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return ordered(op, cmp3(sa, sb)), nil
		}
	}
	return false, types.Errorf(types.ErrInvalidExpression, "cannot compare %s %s %s", kindOf(a), op, kindOf(b))
}

func cmp3[T float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func ordered(op string, c int) bool {
	switch op {
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	default:
		return c <= 0
	}
}

func kindOf(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
