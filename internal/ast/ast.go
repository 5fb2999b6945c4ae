// Package ast is the tagged-variant syntax tree shared by the parser, binder,
// transform and printer.
//
// Every node carries the grammar kind it was parsed as, a preorder ID that is
// unique within its SourceFile, and its byte range in the original text. Leaf
// nodes additionally carry their token text and the trivia (whitespace and
// anything the grammar did not cover) that precedes them, which is what lets
// an unchanged tree print back byte-for-byte.
package ast

import "strings"

// Kind is the grammar node type, e.g. "identifier" or "function_declaration".
type Kind string

const (
	KindProgram                            Kind = "program"
	KindComment                            Kind = "comment"
	KindIdentifier                         Kind = "identifier"
	KindPropertyIdentifier                 Kind = "property_identifier"
	KindShorthandPropertyIdentifier        Kind = "shorthand_property_identifier"
	KindShorthandPropertyIdentifierPattern Kind = "shorthand_property_identifier_pattern"
	KindTypeIdentifier                     Kind = "type_identifier"
	KindString                             Kind = "string"

	KindFunctionDeclaration          Kind = "function_declaration"
	KindGeneratorFunctionDeclaration Kind = "generator_function_declaration"
	KindFunctionSignature            Kind = "function_signature"
	KindFunctionExpression           Kind = "function_expression"
	KindFunction                     Kind = "function" // anonymous function expression in older grammars
	KindGeneratorFunction            Kind = "generator_function"
	KindArrowFunction                Kind = "arrow_function"
	KindMethodDefinition             Kind = "method_definition"
	KindFormalParameters             Kind = "formal_parameters"
	KindRequiredParameter            Kind = "required_parameter"
	KindOptionalParameter            Kind = "optional_parameter"

	KindClassDeclaration         Kind = "class_declaration"
	KindAbstractClassDeclaration Kind = "abstract_class_declaration"
	KindClass                    Kind = "class"
	KindClassBody                Kind = "class_body"

	KindExportStatement    Kind = "export_statement"
	KindExportClause       Kind = "export_clause"
	KindExportSpecifier    Kind = "export_specifier"
	KindNamespaceExport    Kind = "namespace_export"
	KindImportStatement    Kind = "import_statement"
	KindImportClause       Kind = "import_clause"
	KindNamespaceImport    Kind = "namespace_import"
	KindNamedImports       Kind = "named_imports"
	KindImportSpecifier    Kind = "import_specifier"
	KindImportRequire      Kind = "import_require_clause"
	KindImportAlias        Kind = "import_alias"
	KindAmbientDecl        Kind = "ambient_declaration"
	KindEnumDeclaration    Kind = "enum_declaration"
	KindInternalModule     Kind = "internal_module"
	KindModule             Kind = "module"
	KindInterfaceDecl      Kind = "interface_declaration"
	KindTypeAliasDecl      Kind = "type_alias_declaration"
	KindLexicalDecl        Kind = "lexical_declaration"
	KindVariableDecl       Kind = "variable_declaration"
	KindVariableDeclarator Kind = "variable_declarator"

	KindStatementBlock Kind = "statement_block"
	KindForStatement   Kind = "for_statement"
	KindForInStatement Kind = "for_in_statement"
	KindCatchClause    Kind = "catch_clause"
	KindSwitchBody     Kind = "switch_body"

	KindObjectPattern           Kind = "object_pattern"
	KindArrayPattern            Kind = "array_pattern"
	KindPairPattern             Kind = "pair_pattern"
	KindRestPattern             Kind = "rest_pattern"
	KindAssignmentPattern       Kind = "assignment_pattern"
	KindObjectAssignmentPattern Kind = "object_assignment_pattern"

	KindMemberExpression    Kind = "member_expression"
	KindSubscriptExpression Kind = "subscript_expression"
	KindParenthesizedExpr   Kind = "parenthesized_expression"
	KindCallExpression      Kind = "call_expression"
	KindObject              Kind = "object"
	KindPair                Kind = "pair"

	KindTypeAnnotation   Kind = "type_annotation"
	KindTypeParameters   Kind = "type_parameters"
	KindTypeArguments    Kind = "type_arguments"
	KindTypeQuery        Kind = "type_query"
	KindImplementsClause Kind = "implements_clause"
	KindAsExpression     Kind = "as_expression"
	KindSatisfiesExpr    Kind = "satisfies_expression"
	KindNonNullExpr      Kind = "non_null_expression"
	KindAccessibility    Kind = "accessibility_modifier"
	KindOverride         Kind = "override_modifier"

	// KindRaw is a synthesised leaf whose text is emitted verbatim.
	KindRaw Kind = "raw"
)

// NoID marks synthesised nodes that did not come from the parser.
const NoID = -1

// Node is a single syntax tree node.
type Node struct {
	Kind  Kind
	ID    int    // preorder index within the file, NoID if synthesised
	Pos   int    // start byte offset in the original text
	End   int    // end byte offset in the original text
	Field string // field name under the parent, "" if none
	Named bool   // false for punctuation and keyword tokens

	// Leaf-only data.
	Text    string
	Leading string

	Children []*Node

	// Parent is set by the parser. Nodes rebuilt by MapChildren keep the
	// parent of the node they were copied from.
	Parent *Node
}

// IsLeaf reports whether n is a token.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// IsSynthesized reports whether n was created after parsing.
func (n *Node) IsSynthesized() bool {
	return n.ID == NoID
}

// ChildByField returns the first child stored under the given field name.
func (n *Node) ChildByField(field string) *Node {
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildrenByField returns every child stored under the given field name.
func (n *Node) ChildrenByField(field string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// ChildOfKind returns the first direct child of the given kind.
func (n *Node) ChildOfKind(kind Kind) *Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// HasToken reports whether n has an anonymous child token with the given text,
// e.g. the "default" keyword of an export statement.
func (n *Node) HasToken(text string) bool {
	for _, c := range n.Children {
		if !c.Named && c.IsLeaf() && c.Text == text {
			return true
		}
	}
	return false
}

// NamedChildren returns the named children of n.
func (n *Node) NamedChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Named && c.Kind != KindComment {
			out = append(out, c)
		}
	}
	return out
}

// Name returns the text of the node's "name" field if it is a leaf.
func (n *Node) Name() string {
	if name := n.ChildByField("name"); name != nil && name.IsLeaf() {
		return name.Text
	}
	return ""
}

// FirstLeaf returns the leftmost token of n.
func (n *Node) FirstLeaf() *Node {
	for !n.IsLeaf() {
		n = n.Children[0]
	}
	return n
}

// Source returns the printed text of n without its leading trivia.
func (n *Node) Source() string {
	var sb strings.Builder
	first := true
	Walk(n, func(c *Node) bool {
		if c.IsLeaf() {
			if !first {
				sb.WriteString(c.Leading)
			}
			first = false
			sb.WriteString(c.Text)
		}
		return true
	})
	return sb.String()
}

// Walk visits n and its descendants in preorder. Returning false from fn
// skips the children of the visited node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Ancestor returns the nearest ancestor of n whose kind is one of kinds.
func Ancestor(n *Node, kinds ...Kind) *Node {
	for p := n.Parent; p != nil; p = p.Parent {
		for _, k := range kinds {
			if p.Kind == k {
				return p
			}
		}
	}
	return nil
}

// IsFunctionLike reports whether n introduces a function scope. The
// `function` keyword token shares its kind string with the anonymous function
// expression, so only named nodes qualify.
func IsFunctionLike(n *Node) bool {
	if n == nil || !n.Named {
		return false
	}
	switch n.Kind {
	case KindFunctionDeclaration,
		KindGeneratorFunctionDeclaration,
		KindFunctionExpression,
		KindFunction,
		KindGeneratorFunction,
		KindArrowFunction,
		KindMethodDefinition:
		return true
	}
	return false
}

// IsFunctionDeclaration reports whether kind is a named function statement.
func IsFunctionDeclaration(kind Kind) bool {
	return kind == KindFunctionDeclaration || kind == KindGeneratorFunctionDeclaration
}

// IsFunctionExpression reports whether n is a function value expression.
func IsFunctionExpression(n *Node) bool {
	if n == nil || !n.Named {
		return false
	}
	switch n.Kind {
	case KindFunctionExpression, KindFunction, KindGeneratorFunction, KindArrowFunction:
		return true
	}
	return false
}
