// Package binder resolves identifier occurrences to the declarations they
// refer to. It is the symbol-resolution oracle consumed by the transform.
//
// Binding runs in two passes over a file. The first pass creates scopes and
// declares every binding, hoisting `var` and function declarations the way
// the language does. The second pass walks the tree again and resolves each
// reference through the scope chain. Identifiers in type-only positions are
// never resolved: they do not read a runtime value.
package binder

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/elliots/useexports/internal/ast"
)

// Binder is the resolution result for one file. It is read-only after Bind
// returns and may be shared between goroutines.
type Binder struct {
	file     *ast.SourceFile
	module   *Scope
	scopes   map[int]*Scope
	bindings map[int]bool
	refs     map[int]*ast.Node
}

// Bind resolves every identifier occurrence in file.
func Bind(file *ast.SourceFile) *Binder {
	b := &Binder{
		file:     file,
		scopes:   make(map[int]*Scope),
		bindings: make(map[int]bool),
		refs:     make(map[int]*ast.Node),
	}
	b.module = b.newScope(ScopeModule, file.Root, nil)
	b.declareChildren(file.Root, b.module)
	b.resolve(file.Root, b.module)
	return b
}

// Resolve returns the declaration an identifier occurrence refers to. A
// declaring identifier resolves to the declaration it introduces. Type-only
// positions, globals and nodes the binder has not seen resolve to nil.
func (b *Binder) Resolve(ident *ast.Node) *ast.Node {
	if ident == nil || ident.IsSynthesized() {
		return nil
	}
	return b.refs[ident.ID]
}

// IsBinding reports whether ident is the name introduced by a declaration.
func (b *Binder) IsBinding(ident *ast.Node) bool {
	return ident != nil && b.bindings[ident.ID]
}

// ModuleScope returns the top-level scope.
func (b *Binder) ModuleScope() *Scope {
	return b.module
}

// ScopeOf returns the scope created by n, if any.
func (b *Binder) ScopeOf(n *ast.Node) *Scope {
	return b.scopes[n.ID]
}

// References returns the occurrences resolving to decl in source order.
func (b *Binder) References(decl *ast.Node) []*ast.Node {
	var out []*ast.Node
	for id, d := range b.refs {
		if d == decl && !b.bindings[id] {
			out = append(out, b.file.Node(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Binder) newScope(kind ScopeKind, node *ast.Node, parent *Scope) *Scope {
	s := newScope(kind, node, parent)
	b.scopes[node.ID] = s
	return s
}

// bind marks ident as the name introduced by decl.
func (b *Binder) bind(ident, decl *ast.Node) {
	b.bindings[ident.ID] = true
	b.refs[ident.ID] = decl
}

func (b *Binder) declareChildren(n *ast.Node, s *Scope) {
	for _, c := range n.Children {
		b.declare(c, s)
	}
}

func (b *Binder) declare(n *ast.Node, s *Scope) {
	// Keyword tokens such as `function`, `class` and `module` share their kind
	// with the nodes they introduce and declare nothing.
	if !n.Named || isTypeContext(n.Kind) {
		return
	}

	switch n.Kind {
	case ast.KindFunctionDeclaration, ast.KindGeneratorFunctionDeclaration:
		if name := n.ChildByField("name"); name != nil {
			b.bind(name, n)
			s.declare(name.Text, n)
		}
		b.declareFunction(n, s)
		return

	case ast.KindFunctionExpression, ast.KindFunction, ast.KindGeneratorFunction, ast.KindArrowFunction:
		fs := b.declareFunction(n, s)
		if name := n.ChildByField("name"); name != nil {
			b.bind(name, n)
			fs.declare(name.Text, n)
			// `export default function foo() {}` also binds foo in the module.
			if isDefaultExportValue(n) {
				b.module.declare(name.Text, n)
			}
		}
		return

	case ast.KindMethodDefinition:
		b.declareFunction(n, s)
		return

	case ast.KindClassDeclaration, ast.KindAbstractClassDeclaration:
		if name := n.ChildByField("name"); name != nil {
			b.bind(name, n)
			s.declare(name.Text, n)
		}
		b.declareChildren(n, b.newScope(ScopeClass, n, s))
		return

	case ast.KindClass:
		cs := b.newScope(ScopeClass, n, s)
		if name := n.ChildByField("name"); name != nil {
			b.bind(name, n)
			cs.declare(name.Text, n)
		}
		b.declareChildren(n, cs)
		return

	case ast.KindStatementBlock:
		// Parameter defaults do not see the body's declarations, so the body
		// gets its own var scope under the one holding the parameters.
		if n.Field == "body" && ast.IsFunctionLike(n.Parent) {
			b.declareChildren(n, b.newScope(ScopeFunctionBody, n, s))
			return
		}
		b.declareChildren(n, b.newScope(ScopeBlock, n, s))
		return

	case ast.KindForStatement, ast.KindSwitchBody:
		b.declareChildren(n, b.newScope(ScopeBlock, n, s))
		return

	case ast.KindForInStatement:
		fs := b.newScope(ScopeBlock, n, s)
		if kind := n.ChildByField("kind"); kind != nil {
			target := fs
			if kind.Text == "var" {
				target = s.hoistTarget()
			}
			b.declarePattern(n.ChildByField("left"), target, nil)
		}
		b.declareChildren(n, fs)
		return

	case ast.KindCatchClause:
		cs := b.newScope(ScopeBlock, n, s)
		b.declarePattern(n.ChildByField("parameter"), cs, nil)
		b.declareChildren(n, cs)
		return

	case ast.KindVariableDecl:
		for _, d := range n.Children {
			if d.Kind == ast.KindVariableDeclarator {
				b.declarePattern(d.ChildByField("name"), s.hoistTarget(), d)
			}
		}

	case ast.KindLexicalDecl:
		for _, d := range n.Children {
			if d.Kind == ast.KindVariableDeclarator {
				b.declarePattern(d.ChildByField("name"), s, d)
			}
		}

	case ast.KindImportStatement:
		b.declareImport(n)
		return

	case ast.KindImportAlias:
		if name := n.ChildOfKind(ast.KindIdentifier); name != nil {
			b.bind(name, n)
			s.declare(name.Text, n)
		}
		return

	case ast.KindEnumDeclaration, ast.KindInternalModule, ast.KindModule:
		if name := n.ChildByField("name"); name != nil && name.Kind == ast.KindIdentifier {
			b.bind(name, n)
			s.declare(name.Text, n)
		}
		b.declareChildren(n, b.newScope(ScopeBlock, n, s))
		return

	case ast.KindAmbientDecl:
		// `declare` introduces no runtime binding.
		return
	}

	b.declareChildren(n, s)
}

// declareFunction creates the function scope, declares the parameters and
// walks the body.
func (b *Binder) declareFunction(n *ast.Node, s *Scope) *Scope {
	fs := b.newScope(ScopeFunction, n, s)
	if params := n.ChildByField("parameters"); params != nil {
		for _, p := range params.NamedChildren() {
			b.declarePattern(p, fs, nil)
		}
	}
	// Arrow functions with a single bare parameter.
	if p := n.ChildByField("parameter"); p != nil {
		b.declarePattern(p, fs, nil)
	}
	b.declareChildren(n, fs)
	return fs
}

// declarePattern binds every name introduced by a binding pattern. decl is
// the declaring node recorded for the names; nil records the name itself.
func (b *Binder) declarePattern(p *ast.Node, s *Scope, decl *ast.Node) {
	if p == nil {
		return
	}
	switch p.Kind {
	case ast.KindIdentifier, ast.KindShorthandPropertyIdentifierPattern:
		d := decl
		if d == nil {
			d = p
		}
		b.bind(p, d)
		s.declare(p.Text, d)
	case ast.KindObjectPattern, ast.KindArrayPattern, ast.KindRestPattern:
		for _, c := range p.NamedChildren() {
			b.declarePattern(c, s, decl)
		}
	case ast.KindPairPattern:
		b.declarePattern(p.ChildByField("value"), s, decl)
	case ast.KindAssignmentPattern, ast.KindObjectAssignmentPattern:
		b.declarePattern(p.ChildByField("left"), s, decl)
	case ast.KindRequiredParameter, ast.KindOptionalParameter:
		b.declarePattern(p.ChildByField("pattern"), s, decl)
	}
}

func (b *Binder) declareImport(n *ast.Node) {
	for _, c := range n.Children {
		switch c.Kind {
		case ast.KindImportClause:
			b.declareImportClause(c)
		case ast.KindImportRequire:
			if name := c.ChildOfKind(ast.KindIdentifier); name != nil {
				b.bind(name, c)
				b.module.declare(name.Text, c)
			}
		}
	}
}

func (b *Binder) declareImportClause(clause *ast.Node) {
	for _, c := range clause.Children {
		switch c.Kind {
		case ast.KindIdentifier:
			b.bind(c, c)
			b.module.declare(c.Text, c)
		case ast.KindNamespaceImport:
			if name := c.ChildOfKind(ast.KindIdentifier); name != nil {
				b.bind(name, c)
				b.module.declare(name.Text, c)
			}
		case ast.KindNamedImports:
			for _, spec := range c.Children {
				if spec.Kind != ast.KindImportSpecifier {
					continue
				}
				local := spec.ChildByField("alias")
				if local == nil {
					local = spec.ChildByField("name")
				}
				if local == nil {
					continue
				}
				b.bind(local, spec)
				b.module.declare(local.Text, spec)
			}
		}
	}
}

func (b *Binder) resolve(n *ast.Node, s *Scope) {
	if sc, ok := b.scopes[n.ID]; ok {
		s = sc
	}

	switch n.Kind {
	case ast.KindImportStatement, ast.KindAmbientDecl, ast.KindImportAlias:
		return
	case ast.KindExportStatement:
		// `export { x } from './m'` names bindings of another module.
		if n.ChildByField("source") != nil {
			return
		}
	case ast.KindIdentifier, ast.KindShorthandPropertyIdentifier:
		if !b.bindings[n.ID] && n.Field != "alias" && !isIntrinsicTagName(n) {
			if decl := s.Lookup(n.Text); decl != nil {
				b.refs[n.ID] = decl
			}
		}
		return
	}
	if isTypeContext(n.Kind) {
		return
	}

	for _, c := range n.Children {
		b.resolve(c, s)
	}
}

// isIntrinsicTagName reports JSX tag names such as `div` or `my-element`,
// which name host elements rather than bindings in scope.
func isIntrinsicTagName(n *ast.Node) bool {
	p := n.Parent
	if p == nil {
		return false
	}
	switch p.Kind {
	case "jsx_opening_element", "jsx_closing_element", "jsx_self_closing_element":
	default:
		return false
	}
	if n.Text == "" || strings.Contains(n.Text, "-") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(n.Text)
	return unicode.IsLower(r)
}

func isDefaultExportValue(n *ast.Node) bool {
	p := n.Parent
	return p != nil && p.Kind == ast.KindExportStatement && n.Field == "value" && p.HasToken("default")
}

// isTypeContext reports node kinds whose subtrees only describe types.
func isTypeContext(kind ast.Kind) bool {
	switch kind {
	case ast.KindTypeAnnotation,
		ast.KindTypeArguments,
		ast.KindTypeParameters,
		ast.KindTypeAliasDecl,
		ast.KindInterfaceDecl,
		ast.KindImplementsClause,
		ast.KindTypeQuery,
		ast.KindFunctionSignature,
		"nested_type_identifier",
		"method_signature",
		"abstract_method_signature",
		"index_signature",
		"type_predicate_annotation",
		"asserts_annotation",
		"opting_type_annotation",
		"omitting_type_annotation":
		return true
	}
	return false
}
