package commonjs

import "github.com/elliots/useexports/internal/ast"

// typeOnly are subtrees with no runtime meaning.
var typeOnly = map[ast.Kind]bool{
	ast.KindTypeAnnotation:      true,
	ast.KindTypeArguments:       true,
	ast.KindTypeParameters:      true,
	ast.KindTypeAliasDecl:       true,
	ast.KindInterfaceDecl:       true,
	ast.KindImplementsClause:    true,
	ast.KindAmbientDecl:         true,
	ast.KindFunctionSignature:   true,
	ast.KindAccessibility:       true,
	ast.KindOverride:            true,
	"abstract_method_signature": true,
	"method_signature":          true,
	"index_signature":           true,
	"opting_type_annotation":    true,
	"omitting_type_annotation":  true,
	"type_predicate_annotation": true,
	"asserts_annotation":        true,
}

// erase removes type syntax from n.
func (l *lowerer) erase(n *ast.Node) *ast.Node {
	switch {
	case typeOnly[n.Kind]:
		return nil
	case n.Kind == ast.KindEnumDeclaration:
		l.fail(n, "enum declaration")
		return n
	case n.Named && (n.Kind == ast.KindInternalModule || n.Kind == ast.KindModule):
		l.fail(n, "namespace declaration")
		return n
	case n.Kind == ast.KindImportStatement && n.HasToken("type"):
		return nil
	case n.Kind == ast.KindExportStatement && isTypeOnlyExport(n):
		return nil
	case n.Kind == ast.KindAsExpression, n.Kind == ast.KindSatisfiesExpr, n.Kind == ast.KindNonNullExpr:
		// expr as T, expr satisfies T, expr!
		return l.erase(n.Children[0])
	case n.Kind == "type_assertion":
		// <T>expr
		return l.erase(n.Children[len(n.Children)-1])
	}

	out := ast.MapChildren(n, func(c *ast.Node) *ast.Node {
		if !c.Named && c.IsLeaf() && dropsToken(n, c) {
			return nil
		}
		return l.erase(c)
	})
	return out
}

// dropsToken reports TypeScript-only keywords and markers inside parent.
func dropsToken(parent, tok *ast.Node) bool {
	switch tok.Text {
	case "readonly", "declare", "abstract":
		return true
	case "?":
		return parent.Kind == ast.KindOptionalParameter
	case "!":
		return parent.Kind == ast.KindVariableDeclarator || parent.Kind == "public_field_definition"
	}
	return false
}

func isTypeOnlyExport(n *ast.Node) bool {
	if n.HasToken("type") {
		return true
	}
	decl := n.ChildByField("declaration")
	return decl != nil && typeOnly[decl.Kind]
}
