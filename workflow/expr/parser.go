package expr

import (
	"strconv"
	"strings"

	"github.com/BaSui01/flowcore/types"
)

// maxDepth bounds parser recursion for pathological nesting.
const maxDepth = 64

// Expr is a compiled condition expression.
type Expr struct {
	src  string
	root Node
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// Root returns the AST root.
func (e *Expr) Root() Node { return e.root }

// Parse compiles src into an AST. Every failure is an INVALID_EXPRESSION error.
func Parse(src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, types.NewError(types.ErrInvalidExpression, "empty expression")
	}

	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil {
		return nil, types.Errorf(types.ErrInvalidExpression, "unexpected token %q at position %d", t.value, t.pos)
	}
	return &Expr{src: src, root: root}, nil
}

// --- Recursive descent parser ---

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t != nil && t.kind == tkOp && t.value == op
}

func tooDeep() error {
	return types.Errorf(types.ErrInvalidExpression, "expression nested deeper than %d", maxDepth)
}

// parseOr handles: expr || expr
func (p *parser) parseOr(depth int) (Node, error) {
	if depth > maxDepth {
		return nil, tooDeep()
	}
	left, err := p.parseAnd(depth)
	if err != nil {
		return nil, err
	}
	for p.isOp("||") {
		p.advance()
		right, err := p.parseAnd(depth)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

// parseAnd handles: expr && expr
func (p *parser) parseAnd(depth int) (Node, error) {
	left, err := p.parseComparison(depth)
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") {
		p.advance()
		right, err := p.parseComparison(depth)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

// parseComparison handles: expr (==|!=|>|<|>=|<=) expr, non-associative
func (p *parser) parseComparison(depth int) (Node, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil && t.kind == tkOp {
		switch t.value {
		case "==", "!=", ">", "<", ">=", "<=":
			op := p.advance().value
			right, err := p.parseUnary(depth)
			if err != nil {
				return nil, err
			}
			return &Binary{Op: op, Left: left, Right: right}, nil
		}
	}
	return left, nil
}

// parseUnary handles: !expr, primary
func (p *parser) parseUnary(depth int) (Node, error) {
	if p.isOp("!") {
		if depth > maxDepth {
			return nil, tooDeep()
		}
		p.advance()
		x, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	return p.parsePrimary(depth)
}

// parsePrimary handles: literals, references, length(), parenthesized expressions
func (p *parser) parsePrimary(depth int) (Node, error) {
	t := p.peek()
	if t == nil {
		return nil, types.NewError(types.ErrInvalidExpression, "unexpected end of expression")
	}

	switch t.kind {
	case tkNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, types.Errorf(types.ErrInvalidExpression, "bad number %q", t.value).WithCause(err)
		}
		return &Literal{Value: f}, nil

	case tkString:
		p.advance()
		return &Literal{Value: t.value}, nil

	case tkIdent:
		p.advance()
		if p.peek() != nil && p.peek().kind == tkLParen {
			return p.parseCall(*t, depth)
		}
		return identNode(*t)

	case tkLParen:
		p.advance()
		x, err := p.parseOr(depth + 1)
		if err != nil {
			return nil, err
		}
		if p.peek() == nil || p.peek().kind != tkRParen {
			return nil, types.Errorf(types.ErrInvalidExpression, "expected closing parenthesis for position %d", t.pos)
		}
		p.advance()
		return x, nil

	default:
		return nil, types.Errorf(types.ErrInvalidExpression, "unexpected token %q at position %d", t.value, t.pos)
	}
}

// parseCall handles the only permitted function: length(x) / len(x).
func (p *parser) parseCall(name token, depth int) (Node, error) {
	if name.value != "length" && name.value != "len" {
		return nil, types.Errorf(types.ErrInvalidExpression, "unknown function %q at position %d", name.value, name.pos)
	}
	p.advance() // (
	arg, err := p.parseOr(depth + 1)
	if err != nil {
		return nil, err
	}
	if p.peek() == nil || p.peek().kind != tkRParen {
		return nil, types.Errorf(types.ErrInvalidExpression, "%s takes exactly one argument", name.value)
	}
	p.advance()
	return &Length{Arg: arg}, nil
}

func identNode(t token) (Node, error) {
	switch t.value {
	case "true":
		return &Literal{Value: true}, nil
	case "false":
		return &Literal{Value: false}, nil
	case "null", "nil":
		return &Literal{Value: nil}, nil
	}

	parts := strings.Split(t.value, ".")
	for _, part := range parts {
		if part == "" {
			return nil, types.Errorf(types.ErrInvalidExpression, "malformed reference %q at position %d", t.value, t.pos)
		}
	}

	switch parts[0] {
	case rootVariables:
		if len(parts) < 2 {
			return nil, types.Errorf(types.ErrInvalidExpression, "%q needs a step id, e.g. variables.step1", t.value)
		}
		return &Ref{Root: rootVariables, Step: parts[1], Path: parts[2:]}, nil
	case rootInput:
		return &Ref{Root: rootInput, Path: parts[1:]}, nil
	default:
		return nil, types.Errorf(types.ErrInvalidExpression, "unknown identifier %q at position %d", t.value, t.pos)
	}
}

// StepRefs lists the step ids an expression reads, in source order.
func (e *Expr) StepRefs() []string {
	var refs []string
	var walk func(n Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *Ref:
			if n.Root == rootVariables {
				refs = append(refs, n.Step)
			}
		case *Length:
			walk(n.Arg)
		case *Not:
			walk(n.X)
		case *Binary:
			walk(n.Left)
			walk(n.Right)
		}
	}
	walk(e.root)
	return refs
}
