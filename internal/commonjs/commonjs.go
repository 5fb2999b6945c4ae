// Package commonjs lowers an ES module to the CommonJS shape a TypeScript
// compiler emits with `"module": "commonjs"`. Type syntax is erased, imports
// become require calls and exports become assignments to the `exports`
// table, with exported function declarations assigned before the body runs.
//
// The lowering covers the constructs the rewritten output needs to execute.
// Enums and namespaces carry runtime semantics it does not model and are
// rejected with ErrUnsupportedSyntax.
package commonjs

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/elliots/useexports/internal/ast"
	"github.com/elliots/useexports/internal/printer"
)

// ErrUnsupportedSyntax is returned for constructs the lowering does not
// model.
var ErrUnsupportedSyntax = errors.New("unsupported syntax for commonjs lowering")

const header = "\"use strict\";\nObject.defineProperty(exports, \"__esModule\", { value: true });\n"

// kindGroup joins a kept statement with the statements lowered after it.
const kindGroup ast.Kind = "commonjs_group"

type lowerer struct {
	file      *ast.SourceFile
	functions map[string]bool
	hoisted   []string
	err       error
}

// Lower returns file as CommonJS source.
func Lower(file *ast.SourceFile) (string, error) {
	l := &lowerer{file: file, functions: make(map[string]bool)}

	root := l.erase(file.Root)
	if l.err != nil {
		return "", l.err
	}
	for _, stmt := range root.Children {
		decl := stmt
		if stmt.Kind == ast.KindExportStatement {
			if d := stmt.ChildByField("declaration"); d != nil {
				decl = d
			}
		}
		if ast.IsFunctionDeclaration(decl.Kind) && decl.Name() != "" {
			l.functions[decl.Name()] = true
		}
	}

	root = ast.MapChildren(root, l.statement)
	if l.err != nil {
		return "", l.err
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, h := range l.hoisted {
		sb.WriteString(h)
		sb.WriteByte('\n')
	}
	sb.WriteString(printer.Print(file.Update(root)))
	return sb.String(), nil
}

func (l *lowerer) fail(n *ast.Node, what string) {
	if l.err != nil {
		return
	}
	line, col := l.file.LineCol(n.Pos)
	l.err = errors.Wrapf(ErrUnsupportedSyntax, "%s:%d:%d: %s", l.file.FileName, line, col+1, what)
}

func (l *lowerer) hoist(public, local string) {
	l.hoisted = append(l.hoisted, fmt.Sprintf("exports.%s = %s;", public, local))
}

func raw(leading, text string) *ast.Node {
	n := ast.NewRaw(text)
	n.Leading = leading
	return n
}

func group(children ...*ast.Node) *ast.Node {
	return ast.NewNode(kindGroup, children...)
}

func leadingOf(n *ast.Node) string {
	return n.FirstLeaf().Leading
}

func (l *lowerer) statement(stmt *ast.Node) *ast.Node {
	switch stmt.Kind {
	case ast.KindImportStatement:
		return l.importStatement(stmt)
	case ast.KindExportStatement:
		return l.exportStatement(stmt)
	}
	return stmt
}

func (l *lowerer) importStatement(stmt *ast.Node) *ast.Node {
	leading := leadingOf(stmt)
	if req := stmt.ChildOfKind(ast.KindImportRequire); req != nil {
		name := req.ChildOfKind(ast.KindIdentifier)
		src := req.ChildOfKind(ast.KindString)
		if name == nil || src == nil {
			l.fail(stmt, "import require")
			return stmt
		}
		return raw(leading, fmt.Sprintf("const %s = require(%s);", name.Text, src.Source()))
	}

	source := stmt.ChildByField("source")
	if source == nil {
		l.fail(stmt, "import without source")
		return stmt
	}
	src := source.Source()
	clause := stmt.ChildOfKind(ast.KindImportClause)
	if clause == nil {
		return raw(leading, fmt.Sprintf("require(%s);", src))
	}

	var parts []string
	for _, c := range clause.Children {
		switch c.Kind {
		case ast.KindIdentifier:
			parts = append(parts, fmt.Sprintf("const %s = require(%s).default;", c.Text, src))
		case ast.KindNamespaceImport:
			if name := c.ChildOfKind(ast.KindIdentifier); name != nil {
				parts = append(parts, fmt.Sprintf("const %s = require(%s);", name.Text, src))
			}
		case ast.KindNamedImports:
			var names []string
			for _, spec := range c.Children {
				if spec.Kind != ast.KindImportSpecifier || spec.HasToken("type") {
					continue
				}
				name := spec.ChildByField("name")
				if name == nil {
					continue
				}
				if alias := spec.ChildByField("alias"); alias != nil {
					names = append(names, name.Text+": "+alias.Text)
				} else {
					names = append(names, name.Text)
				}
			}
			if len(names) > 0 {
				parts = append(parts, fmt.Sprintf("const { %s } = require(%s);", strings.Join(names, ", "), src))
			}
		}
	}
	if len(parts) == 0 {
		return raw(leading, fmt.Sprintf("require(%s);", src))
	}
	return raw(leading, strings.Join(parts, " "))
}

func (l *lowerer) exportStatement(stmt *ast.Node) *ast.Node {
	leading := leadingOf(stmt)

	if source := stmt.ChildByField("source"); source != nil {
		return l.reexport(stmt, leading, source.Source())
	}

	// export = value;
	if stmt.HasToken("=") {
		named := stmt.NamedChildren()
		if len(named) == 0 {
			l.fail(stmt, "export assignment")
			return stmt
		}
		return raw(leading, fmt.Sprintf("module.exports = %s;", named[0].Source()))
	}

	isDefault := stmt.HasToken("default")
	publicName := func(local string) string {
		if isDefault {
			return "default"
		}
		return local
	}

	if decl := stmt.ChildByField("declaration"); decl != nil {
		decl = ast.WithLeading(decl, leading)
		switch decl.Kind {
		case ast.KindFunctionDeclaration, ast.KindGeneratorFunctionDeclaration:
			l.hoist(publicName(decl.Name()), decl.Name())
			return decl
		case ast.KindClassDeclaration, ast.KindAbstractClassDeclaration:
			name := decl.Name()
			return group(decl, raw("\n", fmt.Sprintf("exports.%s = %s;", publicName(name), name)))
		case ast.KindLexicalDecl, ast.KindVariableDecl:
			var assigns []string
			for _, name := range bindingNames(decl) {
				assigns = append(assigns, fmt.Sprintf("exports.%s = %s;", name, name))
			}
			return group(decl, raw(" ", strings.Join(assigns, " ")))
		}
		l.fail(stmt, "export of "+string(decl.Kind))
		return stmt
	}

	if isDefault {
		value := stmt.ChildByField("value")
		if value == nil {
			l.fail(stmt, "export default without value")
			return stmt
		}
		name := value.Name()
		switch {
		case name != "" && ast.IsFunctionExpression(value):
			l.hoist("default", name)
			return ast.WithLeading(value, leading)
		case name != "" && value.Kind == ast.KindClass:
			return group(ast.WithLeading(value, leading), raw("\n", fmt.Sprintf("exports.default = %s;", name)))
		}
		return raw(leading, fmt.Sprintf("exports.default = %s;", value.Source()))
	}

	clause := stmt.ChildOfKind(ast.KindExportClause)
	if clause == nil {
		l.fail(stmt, "export statement")
		return stmt
	}
	var assigns []string
	for _, spec := range clause.Children {
		if spec.Kind != ast.KindExportSpecifier || spec.HasToken("type") {
			continue
		}
		name := spec.ChildByField("name")
		if name == nil {
			continue
		}
		public := name.Text
		if alias := spec.ChildByField("alias"); alias != nil {
			public = alias.Text
		}
		if l.functions[name.Text] {
			l.hoist(public, name.Text)
			continue
		}
		assigns = append(assigns, fmt.Sprintf("exports.%s = %s;", public, name.Text))
	}
	if len(assigns) == 0 {
		return nil
	}
	return raw(leading, strings.Join(assigns, " "))
}

func (l *lowerer) reexport(stmt *ast.Node, leading, src string) *ast.Node {
	if clause := stmt.ChildOfKind(ast.KindExportClause); clause != nil {
		var assigns []string
		for _, spec := range clause.Children {
			if spec.Kind != ast.KindExportSpecifier {
				continue
			}
			name := spec.ChildByField("name")
			if name == nil {
				continue
			}
			public := name.Text
			if alias := spec.ChildByField("alias"); alias != nil {
				public = alias.Text
			}
			assigns = append(assigns, fmt.Sprintf("exports.%s = require(%s).%s;", public, src, name.Text))
		}
		return raw(leading, strings.Join(assigns, " "))
	}
	if ns := stmt.ChildOfKind(ast.KindNamespaceExport); ns != nil {
		if name := ns.ChildOfKind(ast.KindIdentifier); name != nil {
			return raw(leading, fmt.Sprintf("exports.%s = require(%s);", name.Text, src))
		}
	}
	return raw(leading, fmt.Sprintf("Object.assign(exports, require(%s));", src))
}

// bindingNames lists the names a variable statement declares.
func bindingNames(decl *ast.Node) []string {
	var names []string
	var collect func(p *ast.Node)
	collect = func(p *ast.Node) {
		if p == nil {
			return
		}
		switch p.Kind {
		case ast.KindIdentifier, ast.KindShorthandPropertyIdentifierPattern:
			names = append(names, p.Text)
		case ast.KindObjectPattern, ast.KindArrayPattern, ast.KindRestPattern:
			for _, c := range p.NamedChildren() {
				collect(c)
			}
		case ast.KindPairPattern:
			collect(p.ChildByField("value"))
		case ast.KindAssignmentPattern, ast.KindObjectAssignmentPattern:
			collect(p.ChildByField("left"))
		}
	}
	for _, d := range decl.Children {
		if d.Kind == ast.KindVariableDeclarator {
			collect(d.ChildByField("name"))
		}
	}
	return names
}
