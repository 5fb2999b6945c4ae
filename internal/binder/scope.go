package binder

import "github.com/elliots/useexports/internal/ast"

// ScopeKind classifies scopes.
type ScopeKind int

const (
	ScopeModule ScopeKind = iota
	ScopeFunction
	ScopeFunctionBody
	ScopeBlock
	ScopeClass
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeModule:
		return "module"
	case ScopeFunction:
		return "function"
	case ScopeFunctionBody:
		return "body"
	case ScopeBlock:
		return "block"
	case ScopeClass:
		return "class"
	}
	return "unknown"
}

// Scope holds the names declared directly in one lexical scope.
type Scope struct {
	Kind     ScopeKind
	Node     *ast.Node
	Parent   *Scope
	Children []*Scope
	Members  map[string]*ast.Node
}

func newScope(kind ScopeKind, node *ast.Node, parent *Scope) *Scope {
	s := &Scope{Kind: kind, Node: node, Parent: parent, Members: make(map[string]*ast.Node)}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// declare binds name to decl. A name keeps its first declaration, except
// that a function declaration replaces an earlier `var` of the same name.
func (s *Scope) declare(name string, decl *ast.Node) {
	if name == "" {
		return
	}
	if prev, ok := s.Members[name]; ok {
		if !ast.IsFunctionDeclaration(decl.Kind) || ast.IsFunctionDeclaration(prev.Kind) {
			return
		}
	}
	s.Members[name] = decl
}

// Lookup resolves name through s and its parents.
func (s *Scope) Lookup(name string) *ast.Node {
	for cur := s; cur != nil; cur = cur.Parent {
		if decl, ok := cur.Members[name]; ok {
			return decl
		}
	}
	return nil
}

// hoistTarget is the nearest scope `var` declarations belong to.
func (s *Scope) hoistTarget() *Scope {
	cur := s
	for cur.Kind != ScopeFunctionBody && cur.Kind != ScopeFunction && cur.Kind != ScopeModule && cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}
