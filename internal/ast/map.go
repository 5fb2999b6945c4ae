package ast

// Visitor returns the replacement for a child node. Returning the child
// itself keeps it; returning nil drops it.
type Visitor func(*Node) *Node

// MapChildren rebuilds n from the visited form of its children. When every
// child comes back unchanged n itself is returned, otherwise a shallow copy
// with the new child list. Kind, range, field and leaf data are kept as is.
// A replacement child inherits the field name of the child it replaces.
func MapChildren(n *Node, visit Visitor) *Node {
	var children []*Node
	changed := false
	for i, c := range n.Children {
		r := visit(c)
		if r != c && !changed {
			changed = true
			children = make([]*Node, i, len(n.Children))
			copy(children, n.Children[:i])
		}
		if !changed || r == nil {
			continue
		}
		if r != c && r.Field != c.Field {
			cp := *r
			cp.Field = c.Field
			r = &cp
		}
		children = append(children, r)
	}
	if !changed {
		return n
	}
	out := *n
	out.Children = children
	return &out
}

// NewToken creates a synthesised leaf.
func NewToken(kind Kind, text string, named bool) *Node {
	return &Node{Kind: kind, ID: NoID, Pos: -1, End: -1, Named: named, Text: text}
}

// NewIdentifier creates a synthesised identifier.
func NewIdentifier(name string) *Node {
	return NewToken(KindIdentifier, name, true)
}

// NewRaw creates a leaf printed verbatim.
func NewRaw(text string) *Node {
	return NewToken(KindRaw, text, true)
}

// NewNode creates a synthesised interior node.
func NewNode(kind Kind, children ...*Node) *Node {
	return &Node{Kind: kind, ID: NoID, Pos: -1, End: -1, Named: true, Children: children}
}

func withField(n *Node, field string) *Node {
	n.Field = field
	return n
}

// NewPropertyAccess creates `object.property`.
func NewPropertyAccess(object, property string) *Node {
	return NewNode(KindMemberExpression,
		withField(NewIdentifier(object), "object"),
		NewToken(".", ".", false),
		withField(NewToken(KindPropertyIdentifier, property, true), "property"),
	)
}

// NewElementAccess creates `object["key"]`.
func NewElementAccess(object, key string) *Node {
	return NewNode(KindSubscriptExpression,
		withField(NewIdentifier(object), "object"),
		NewToken("[", "[", false),
		withField(NewToken(KindString, `"`+key+`"`, true), "index"),
		NewToken("]", "]", false),
	)
}

// NewPair creates `key: value` for object literals.
func NewPair(key string, value *Node) *Node {
	return NewNode(KindPair,
		withField(NewToken(KindPropertyIdentifier, key, true), "key"),
		NewToken(":", ":", false),
		withField(WithLeading(value, " "), "value"),
	)
}

// WithLeading returns n with the leading trivia of its first token replaced.
// Only the path to that token is copied.
func WithLeading(n *Node, leading string) *Node {
	cp := *n
	if n.IsLeaf() {
		cp.Leading = leading
		return &cp
	}
	cp.Children = append([]*Node(nil), n.Children...)
	cp.Children[0] = WithLeading(n.Children[0], leading)
	return &cp
}

// SetRange stamps the byte range of the node a synthesised subtree replaces
// onto every synthesised node in it, so printers can map it back.
func SetRange(n *Node, pos, end int) *Node {
	Walk(n, func(c *Node) bool {
		if c.IsSynthesized() && c.Pos < 0 {
			c.Pos, c.End = pos, end
		}
		return true
	})
	return n
}
