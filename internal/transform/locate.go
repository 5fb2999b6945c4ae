package transform

import (
	"github.com/charmbracelet/log"
	"github.com/wk8/go-ordered-map/v2"

	"github.com/elliots/useexports/internal/ast"
)

// Resolver maps an identifier occurrence to the declaration it refers to.
// It returns nil when the occurrence resolves to nothing in the file.
type Resolver interface {
	Resolve(ident *ast.Node) *ast.Node
}

// OccurrenceRecord is an identifier slated for rewriting.
type OccurrenceRecord struct {
	ID         int
	Pos        int
	LocalName  string
	PublicName string
	IsDefault  bool
	DeclID     int
}

// RejectReason says why a same-named identifier is left alone.
type RejectReason string

const (
	ReasonDeclarationName  RejectReason = "declaration-name"
	ReasonExportSpecifier  RejectReason = "export-specifier"
	ReasonExportAssignment RejectReason = "export-assignment"
	ReasonShadowed         RejectReason = "shadowed"
	ReasonUnresolved       RejectReason = "unresolved"
)

// Rejection is an identifier that matched an exported name but is not a
// reference to the exported function.
type Rejection struct {
	ID        int
	Pos       int
	LocalName string
	Reason    RejectReason
}

type occurrenceTable = orderedmap.OrderedMap[int, *OccurrenceRecord]

// locateReferences finds every identifier that reads one of the exported
// functions. Occurrences are keyed by node ID in source order.
func locateReferences(file *ast.SourceFile, exports *exportTable, resolver Resolver, logger *log.Logger) (*occurrenceTable, []Rejection) {
	found := orderedmap.New[int, *OccurrenceRecord]()
	var rejected []Rejection
	if exports.Len() == 0 {
		return found, nil
	}

	reject := func(id *ast.Node, reason RejectReason) {
		logger.Debug("not rewriting", "name", id.Text, "pos", id.Pos, "reason", reason)
		rejected = append(rejected, Rejection{ID: id.ID, Pos: id.Pos, LocalName: id.Text, Reason: reason})
	}

	for _, id := range file.Identifiers() {
		rec, ok := exports.Get(id.Text)
		if !ok {
			continue
		}
		if reason := structuralExclusion(id); reason != "" {
			reject(id, reason)
			continue
		}
		decl := resolver.Resolve(id)
		switch {
		case decl == nil:
			reject(id, ReasonUnresolved)
		case decl.ID != rec.DeclID:
			reject(id, ReasonShadowed)
		default:
			found.Set(id.ID, &OccurrenceRecord{
				ID:         id.ID,
				Pos:        id.Pos,
				LocalName:  rec.LocalName,
				PublicName: rec.PublicName,
				IsDefault:  rec.IsDefault,
				DeclID:     rec.DeclID,
			})
		}
	}
	return found, rejected
}

// structuralExclusion reports identifiers that must keep their form
// whatever they resolve to.
func structuralExclusion(id *ast.Node) RejectReason {
	p := id.Parent
	if p == nil {
		return ""
	}
	switch {
	case id.Field == "name" && (ast.IsFunctionDeclaration(p.Kind) || ast.IsFunctionExpression(p)):
		return ReasonDeclarationName
	case id.Field == "name" && p.Kind == ast.KindVariableDeclarator:
		return ReasonDeclarationName
	case p.Kind == ast.KindExportSpecifier:
		return ReasonExportSpecifier
	case p.Kind == ast.KindExportStatement:
		// `export default foo;` and `export = foo;`
		return ReasonExportAssignment
	}
	return ""
}
