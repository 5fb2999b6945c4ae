package transform

import (
	"github.com/charmbracelet/log"

	"github.com/elliots/useexports/internal/ast"
)

// es3Reserved are the words ES3 forbids after a dot.
var es3Reserved = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true,
	"do": true, "else": true, "enum": true, "export": true, "extends": true,
	"false": true, "finally": true, "for": true, "function": true, "if": true,
	"import": true, "in": true, "instanceof": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true, "throw": true,
	"true": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true,
}

type rewriter struct {
	cfg         Config
	target      ScriptTarget
	resolver    Resolver
	occurrences *occurrenceTable
	logger      *log.Logger
	applied     []*OccurrenceRecord
}

// rewrite rebuilds root bottom-up, replacing every located occurrence with
// an access through the export table.
func (r *rewriter) rewrite(root *ast.Node) *ast.Node {
	if r.occurrences.Len() == 0 {
		return root
	}
	return r.visit(root)
}

func (r *rewriter) visit(n *ast.Node) *ast.Node {
	n = ast.MapChildren(n, r.visit)
	if n.IsSynthesized() || (n.Kind != ast.KindIdentifier && n.Kind != ast.KindShorthandPropertyIdentifier) {
		return n
	}
	occ, ok := r.occurrences.Get(n.ID)
	if !ok {
		return n
	}
	r.occurrences.Delete(n.ID)

	if decl := r.resolver.Resolve(n); decl == nil || decl.ID != occ.DeclID {
		r.logger.Warn("occurrence no longer resolves to export", "name", n.Text, "pos", n.Pos)
		return n
	}
	r.applied = append(r.applied, occ)

	access := r.access(occ)
	if n.Kind == ast.KindShorthandPropertyIdentifier {
		// { foo } -> { foo: exports.foo }
		pair := ast.WithLeading(ast.NewPair(n.Text, access), n.Leading)
		return ast.SetRange(pair, n.Pos, n.End)
	}
	return ast.SetRange(ast.WithLeading(access, n.Leading), n.Pos, n.End)
}

func (r *rewriter) access(occ *OccurrenceRecord) *ast.Node {
	slot := occ.PublicName
	if occ.IsDefault {
		slot = r.cfg.DefaultSlot
	}
	if r.target == TargetES3 && es3Reserved[slot] {
		return ast.NewElementAccess(r.cfg.ExportsIdentifier, slot)
	}
	return ast.NewPropertyAccess(r.cfg.ExportsIdentifier, slot)
}
