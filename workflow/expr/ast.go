package expr

// Node is a parsed expression node. The set of node kinds is closed.
type Node interface {
	node()
}

// Literal is a constant: float64, string, bool or nil.
type Literal struct {
	Value any
}

// Ref reads from the scope: Root is "variables" or "input".
type Ref struct {
	Root string
	// Step is the step id for variables references.
	Step string
	Path []string
}

// Length is length(x).
type Length struct {
	Arg Node
}

// Not is !x.
type Not struct {
	X Node
}

// Binary is a comparison or boolean operator.
type Binary struct {
	Op          string
	Left, Right Node
}

func (*Literal) node() {}
func (*Ref) node()     {}
func (*Length) node()  {}
func (*Not) node()     {}
func (*Binary) node()  {}

const (
	rootVariables = "variables"
	rootInput     = "input"
)
