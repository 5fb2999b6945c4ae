// Package parser turns TypeScript and JavaScript sources into the ast model
// using tree-sitter grammars.
package parser

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/elliots/useexports/internal/ast"
)

var (
	ErrSyntax              = errors.New("syntax error")
	ErrUnsupportedLanguage = errors.New("unsupported source file extension")
	ErrInvalidContent      = errors.New("content is not valid UTF-8")
	ErrFileTooLarge        = errors.New("file too large")
)

// DefaultMaxFileSize bounds the sources the parser accepts.
const DefaultMaxFileSize = 10 * 1024 * 1024

// fieldNames are the grammar fields recorded on ast nodes. Fields outside
// this list are not consulted by any pass.
var fieldNames = []string{
	"name", "alias", "value", "declaration", "source", "body",
	"parameters", "parameter", "pattern", "left", "right", "kind",
	"function", "arguments", "object", "property", "index", "key",
	"type", "return_type", "type_parameters", "initializer", "label",
	"constructor", "decorator", "condition", "consequence", "alternative",
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxFileSize sets the largest accepted source in bytes.
func WithMaxFileSize(bytes int) Option {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// Parser is safe for concurrent use; each Parse call creates its own
// tree-sitter parser.
type Parser struct {
	maxFileSize int
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile parses content with a default Parser.
func ParseFile(ctx context.Context, fileName string, content []byte) (*ast.SourceFile, error) {
	return New().Parse(ctx, fileName, content)
}

// LanguageFor picks the grammar for a file name.
func LanguageFor(fileName string) (ast.Language, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".ts", ".mts", ".cts":
		return ast.LanguageTypeScript, nil
	case ".tsx":
		return ast.LanguageTSX, nil
	case ".js", ".mjs", ".cjs", ".jsx":
		return ast.LanguageJavaScript, nil
	}
	return "", errors.Wrapf(ErrUnsupportedLanguage, "%s", fileName)
}

// IsSourceFile reports whether the parser handles fileName. Declaration
// files are excluded since they carry no runtime code.
func IsSourceFile(fileName string) bool {
	if strings.HasSuffix(fileName, ".d.ts") || strings.HasSuffix(fileName, ".d.mts") || strings.HasSuffix(fileName, ".d.cts") {
		return false
	}
	_, err := LanguageFor(fileName)
	return err == nil
}

func grammar(lang ast.Language) *sitter.Language {
	switch lang {
	case ast.LanguageTSX:
		return tsx.GetLanguage()
	case ast.LanguageJavaScript:
		return javascript.GetLanguage()
	default:
		return typescript.GetLanguage()
	}
}

// Parse parses one module. Sources with syntax errors are rejected with
// ErrSyntax since a partial tree cannot be rewritten safely.
func (p *Parser) Parse(ctx context.Context, fileName string, content []byte) (*ast.SourceFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "parse canceled before start")
	}
	if len(content) > p.maxFileSize {
		return nil, errors.Wrapf(ErrFileTooLarge, "%s: size %d exceeds limit %d", fileName, len(content), p.maxFileSize)
	}
	if !utf8.Valid(content) {
		return nil, errors.Wrapf(ErrInvalidContent, "%s", fileName)
	}
	lang, err := LanguageFor(fileName)
	if err != nil {
		return nil, err
	}

	tsParser := sitter.NewParser()
	defer tsParser.Close()
	tsParser.SetLanguage(grammar(lang))

	tree, err := tsParser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, errors.Wrapf(err, "tree-sitter parse failed for %s", fileName)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, errors.Newf("tree-sitter returned no tree for %s", fileName)
	}
	if root.HasError() {
		return nil, syntaxError(fileName, root)
	}

	b := &builder{src: content}
	top := b.build(root, nil, "")
	trailing := ""
	if b.cursor < len(content) {
		trailing = string(content[b.cursor:])
	}
	return ast.NewSourceFile(fileName, string(content), lang, top, trailing, b.nodes), nil
}

func syntaxError(fileName string, root *sitter.Node) error {
	bad := firstError(root)
	if bad == nil {
		return errors.Wrapf(ErrSyntax, "%s", fileName)
	}
	pt := bad.StartPoint()
	return errors.Wrapf(ErrSyntax, "%s:%d:%d", fileName, pt.Row+1, pt.Column+1)
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || !c.HasError() && !c.IsMissing() {
			continue
		}
		if bad := firstError(c); bad != nil {
			return bad
		}
	}
	return nil
}

// builder copies the tree-sitter tree into ast nodes in preorder, handing
// out IDs and attaching the text between tokens to the following token.
type builder struct {
	src    []byte
	nodes  []*ast.Node
	cursor int
}

func (b *builder) build(n *sitter.Node, parent *ast.Node, field string) *ast.Node {
	node := &ast.Node{
		Kind:   ast.Kind(n.Type()),
		ID:     len(b.nodes),
		Pos:    int(n.StartByte()),
		End:    int(n.EndByte()),
		Field:  field,
		Named:  n.IsNamed(),
		Parent: parent,
	}
	b.nodes = append(b.nodes, node)

	count := int(n.ChildCount())
	if count == 0 {
		start := max(node.Pos, b.cursor)
		end := max(node.End, start)
		node.Leading = string(b.src[b.cursor:start])
		node.Text = string(b.src[start:end])
		b.cursor = end
		return node
	}

	children := make([]*sitter.Node, count)
	for i := range children {
		children[i] = n.Child(i)
	}
	fields := childFields(n, children)
	node.Children = make([]*ast.Node, 0, count)
	for i, c := range children {
		node.Children = append(node.Children, b.build(c, node, fields[i]))
	}
	return node
}

// childFields matches each field lookup back to a child position.
func childFields(n *sitter.Node, children []*sitter.Node) []string {
	out := make([]string, len(children))
	for _, name := range fieldNames {
		fc := n.ChildByFieldName(name)
		if fc == nil {
			continue
		}
		for i, c := range children {
			if out[i] == "" && c.StartByte() == fc.StartByte() && c.EndByte() == fc.EndByte() && c.Type() == fc.Type() {
				out[i] = name
				break
			}
		}
	}
	return out
}
