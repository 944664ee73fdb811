package doctree

import "strings"

// DocTree is the root of a parsed source file.
type DocTree struct {
	Title    string // Source title (from metadata or filename)
	Children []Node // Top-level nodes in document order
}

// Kind identifies the variant of a Node.
type Kind int

const (
	KindSection Kind = iota
	KindFigure
	KindGraphics
	KindText
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindSection:
		return "section"
	case KindFigure:
		return "figure"
	case KindGraphics:
		return "graphics"
	case KindText:
		return "text"
	case KindOther:
		return "other"
	}
	return "unknown"
}

// Node is a closed set of variants: *Section, *Figure, *Graphics, *Text, *Other.
// Children are returned in document order and must not be modified by callers.
type Node interface {
	Kind() Kind
	Children() []Node
	sealed()
}

// Arg is one argument of a command, as written in the source.
type Arg struct {
	Optional bool   // [..] rather than {..}
	Raw      string // Source text between the delimiters
	Nodes    []Node // Parsed content of Raw
}

// Section is a heading and the content nested under it.
type Section struct {
	Name  string // Command or tag that opened the section, e.g. "subsection", "h2"
	Level int
	Title string
	Body  []Node
}

// Figure is a displayed figure container.
type Figure struct {
	Env  string
	Body []Node
}

// Graphics is a directive embedding an external image file.
type Graphics struct {
	Directive string // includegraphics, epsfig, epsfbox, psfig, img, image
	Args      []Arg
}

// Text is a run of plain source text.
type Text struct {
	Content string
}

// Other is any node the walker does not classify. Body holds the nodes that
// carry readable content (environment bodies, content-bearing arguments).
type Other struct {
	Name string
	Args []Arg
	Body []Node
}

func (*Section) Kind() Kind  { return KindSection }
func (*Figure) Kind() Kind   { return KindFigure }
func (*Graphics) Kind() Kind { return KindGraphics }
func (*Text) Kind() Kind     { return KindText }
func (*Other) Kind() Kind    { return KindOther }

func (n *Section) Children() []Node { return n.Body }
func (n *Figure) Children() []Node  { return n.Body }
func (*Graphics) Children() []Node  { return nil }
func (*Text) Children() []Node      { return nil }
func (n *Other) Children() []Node   { return n.Body }

func (*Section) sealed()  {}
func (*Figure) sealed()   {}
func (*Graphics) sealed() {}
func (*Text) sealed()     {}
func (*Other) sealed()    {}

// RequiredArgs returns the non-optional arguments in order.
func RequiredArgs(args []Arg) []Arg {
	var out []Arg
	for _, a := range args {
		if !a.Optional {
			out = append(out, a)
		}
	}
	return out
}

// LastRequired returns the last non-optional argument, if any.
func LastRequired(args []Arg) (Arg, bool) {
	req := RequiredArgs(args)
	if len(req) == 0 {
		return Arg{}, false
	}
	return req[len(req)-1], true
}

// Find returns the first descendant of n (pre-order, n excluded) that matches.
func Find(n Node, match func(Node) bool) Node {
	for _, c := range n.Children() {
		if match(c) {
			return c
		}
		if found := Find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every descendant of n (pre-order, n excluded) that matches.
func FindAll(n Node, match func(Node) bool) []Node {
	var out []Node
	var visit func(Node)
	visit = func(cur Node) {
		for _, c := range cur.Children() {
			if match(c) {
				out = append(out, c)
			}
			visit(c)
		}
	}
	visit(n)
	return out
}

// IsOther reports whether n is an Other node with the given name.
func IsOther(name string) func(Node) bool {
	return func(n Node) bool {
		o, ok := n.(*Other)
		return ok && o.Name == name
	}
}

// TextContent concatenates every Text leaf reachable through Children.
func TextContent(nodes []Node) string {
	var sb strings.Builder
	var visit func([]Node)
	visit = func(ns []Node) {
		for _, n := range ns {
			if t, ok := n.(*Text); ok {
				sb.WriteString(t.Content)
				continue
			}
			visit(n.Children())
		}
	}
	visit(nodes)
	return sb.String()
}
