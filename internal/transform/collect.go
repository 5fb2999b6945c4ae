package transform

import (
	"github.com/charmbracelet/log"
	"github.com/wk8/go-ordered-map/v2"

	"github.com/elliots/useexports/internal/ast"
)

// ExportRecord describes one exported function of the file.
type ExportRecord struct {
	// LocalName is the identifier the function is declared with.
	LocalName string
	// PublicName is the name under which the function is exported:
	// LocalName, or "default" for the default export.
	PublicName string
	IsDefault  bool
	// DeclID is the node ID of the declaration references must resolve to.
	DeclID  int
	DeclPos int
}

// exportTable holds the collected exports keyed by local name, in the order
// they were found.
type exportTable = orderedmap.OrderedMap[string, *ExportRecord]

type collector struct {
	cfg     Config
	logger  *log.Logger
	records *exportTable
	public  map[string]string
}

// collectExports finds the module-level functions the file exports.
func collectExports(file *ast.SourceFile, cfg Config, logger *log.Logger) *exportTable {
	c := &collector{
		cfg:     cfg,
		logger:  logger,
		records: orderedmap.New[string, *ExportRecord](),
		public:  make(map[string]string),
	}

	// Clauses may name functions declared further down.
	functions := make(map[string]*ast.Node)
	variables := make(map[string]*ast.Node)
	for _, stmt := range file.Statements() {
		switch {
		case ast.IsFunctionDeclaration(stmt.Kind):
			if name := stmt.Name(); name != "" {
				if _, ok := functions[name]; !ok {
					functions[name] = stmt
				}
			}
		case stmt.Kind == ast.KindLexicalDecl || stmt.Kind == ast.KindVariableDecl:
			for _, d := range functionDeclarators(stmt) {
				variables[d.ChildByField("name").Text] = d
			}
		}
	}

	for _, stmt := range file.Statements() {
		if stmt.Kind != ast.KindExportStatement || stmt.ChildByField("source") != nil {
			continue
		}
		isDefault := stmt.HasToken("default")

		if decl := stmt.ChildByField("declaration"); decl != nil {
			switch {
			case ast.IsFunctionDeclaration(decl.Kind):
				c.add(decl.Name(), decl, isDefault)
			case cfg.FunctionVariables && (decl.Kind == ast.KindLexicalDecl || decl.Kind == ast.KindVariableDecl):
				for _, d := range functionDeclarators(decl) {
					c.add(d.ChildByField("name").Text, d, false)
				}
			}
			continue
		}

		if isDefault {
			// `export default function foo() {}` may parse as an expression.
			// Anonymous defaults have nothing to reference and are skipped.
			if value := stmt.ChildByField("value"); value != nil && ast.IsFunctionExpression(value) {
				c.add(value.Name(), value, true)
			}
			continue
		}

		clause := stmt.ChildOfKind(ast.KindExportClause)
		if clause == nil || !cfg.ExportClauses {
			continue
		}
		for _, spec := range clause.Children {
			if spec.Kind != ast.KindExportSpecifier {
				continue
			}
			name := spec.ChildByField("name")
			if name == nil {
				continue
			}
			if alias := spec.ChildByField("alias"); alias != nil && alias.Text != name.Text {
				c.logger.Debug("skipping aliased export", "local", name.Text, "exported", alias.Text)
				continue
			}
			if decl, ok := functions[name.Text]; ok {
				c.add(name.Text, decl, false)
			} else if decl, ok := variables[name.Text]; ok && cfg.FunctionVariables {
				c.add(name.Text, decl, false)
			}
		}
	}
	return c.records
}

func (c *collector) add(local string, decl *ast.Node, isDefault bool) {
	if local == "" {
		return
	}
	public := local
	if isDefault {
		public = DefaultSlot
	}
	if c.cfg.ShouldIgnoreName(local) {
		c.logger.Debug("ignoring export", "name", local)
		return
	}
	if prev, ok := c.records.Get(local); ok {
		if prev.PublicName != public {
			c.logger.Debug("function exported more than once, keeping first name", "local", local, "kept", prev.PublicName, "dropped", public)
		}
		return
	}
	if owner, ok := c.public[public]; ok {
		c.logger.Warn("public name already taken", "public", public, "owner", owner, "local", local)
		return
	}
	c.public[public] = local
	c.records.Set(local, &ExportRecord{
		LocalName:  local,
		PublicName: public,
		IsDefault:  isDefault,
		DeclID:     decl.ID,
		DeclPos:    decl.Pos,
	})
}

// functionDeclarators returns the declarators of a variable statement that
// bind a plain identifier to a function or arrow expression.
func functionDeclarators(stmt *ast.Node) []*ast.Node {
	var out []*ast.Node
	for _, d := range stmt.Children {
		if d.Kind != ast.KindVariableDeclarator {
			continue
		}
		name := d.ChildByField("name")
		value := d.ChildByField("value")
		if name == nil || value == nil || name.Kind != ast.KindIdentifier {
			continue
		}
		if ast.IsFunctionExpression(unwrapParens(value)) {
			out = append(out, d)
		}
	}
	return out
}

func unwrapParens(n *ast.Node) *ast.Node {
	for n.Kind == ast.KindParenthesizedExpr {
		inner := n.NamedChildren()
		if len(inner) != 1 {
			break
		}
		n = inner[0]
	}
	return n
}

// records returns the table values in insertion order.
func records(t *exportTable) []*ExportRecord {
	out := make([]*ExportRecord, 0, t.Len())
	for pair := t.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}
