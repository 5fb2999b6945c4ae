package ast

// Language identifies the grammar a file was parsed with.
type Language string

const (
	LanguageTypeScript Language = "typescript"
	LanguageTSX        Language = "tsx"
	LanguageJavaScript Language = "javascript"
)

// SourceFile is one parsed module.
type SourceFile struct {
	FileName string
	Text     string
	Language Language
	Root     *Node

	// Trailing is the text after the last token.
	Trailing string

	nodes []*Node
}

// NewSourceFile wraps a parsed tree. nodes must be indexed by node ID.
func NewSourceFile(fileName, text string, lang Language, root *Node, trailing string, nodes []*Node) *SourceFile {
	return &SourceFile{
		FileName: fileName,
		Text:     text,
		Language: lang,
		Root:     root,
		Trailing: trailing,
		nodes:    nodes,
	}
}

// Node returns the parsed node with the given ID, or nil.
func (f *SourceFile) Node(id int) *Node {
	if id < 0 || id >= len(f.nodes) {
		return nil
	}
	return f.nodes[id]
}

// NodeCount returns the number of parsed nodes.
func (f *SourceFile) NodeCount() int {
	return len(f.nodes)
}

// Statements returns the top-level children of the program.
func (f *SourceFile) Statements() []*Node {
	return f.Root.NamedChildren()
}

// Identifiers returns every identifier occurrence of the original tree in
// source order, including object literal shorthands such as `{ foo }`.
func (f *SourceFile) Identifiers() []*Node {
	var out []*Node
	for _, n := range f.nodes {
		if n.Kind == KindIdentifier || n.Kind == KindShorthandPropertyIdentifier {
			out = append(out, n)
		}
	}
	return out
}

// Update returns a copy of f with a new root. The node index still refers to
// the original parse, so IDs keep resolving to the nodes the binder saw.
func (f *SourceFile) Update(root *Node) *SourceFile {
	if root == f.Root {
		return f
	}
	out := *f
	out.Root = root
	return &out
}

// LineCol converts a byte offset into a 1-based line and 0-based column.
func (f *SourceFile) LineCol(pos int) (line, col int) {
	line = 1
	start := 0
	for i := 0; i < pos && i < len(f.Text); i++ {
		if f.Text[i] == '\n' {
			line++
			start = i + 1
		}
	}
	return line, pos - start
}
