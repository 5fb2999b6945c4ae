// Package printer turns a syntax tree back into source text. Parsed tokens
// are emitted with the trivia that preceded them, so an unmodified tree
// prints exactly the text it was parsed from.
package printer

import (
	"strings"

	"github.com/elliots/useexports/internal/ast"
)

// Print renders file.
func Print(file *ast.SourceFile) string {
	var sb strings.Builder
	sb.Grow(len(file.Text) + 64)
	writeNode(&sb, file.Root)
	sb.WriteString(file.Trailing)
	return sb.String()
}

// PrintNode renders n including the trivia before its first token.
func PrintNode(n *ast.Node) string {
	var sb strings.Builder
	writeNode(&sb, n)
	return sb.String()
}

func writeNode(sb *strings.Builder, n *ast.Node) {
	ast.Walk(n, func(c *ast.Node) bool {
		if c.IsLeaf() {
			sb.WriteString(c.Leading)
			sb.WriteString(c.Text)
		}
		return true
	})
}

// PrintWithSourceMap renders file and maps every emitted token back to the
// original position it came from. Synthesised tokens map to the start of
// the node they replaced.
func PrintWithSourceMap(file *ast.SourceFile) (string, *RawSourceMap) {
	p := &mappedPrinter{
		index:   newLineIndex(file.Text),
		builder: newMappingBuilder(),
	}
	p.out.Grow(len(file.Text) + 64)

	ast.Walk(file.Root, func(c *ast.Node) bool {
		if c.IsLeaf() {
			p.write(c.Leading, -1)
			p.write(c.Text, c.Pos)
		}
		return true
	})
	p.write(file.Trailing, -1)

	return p.out.String(), newRawSourceMap(file.FileName, file.Text, p.builder.String())
}

type mappedPrinter struct {
	out     strings.Builder
	index   *lineIndex
	builder *mappingBuilder
	genCol  int
}

// write emits text. When srcPos is not negative a segment is recorded at
// the start of the text and again after every line break inside it.
func (p *mappedPrinter) write(text string, srcPos int) {
	if text == "" {
		return
	}
	if srcPos >= 0 {
		p.mark(srcPos)
	}
	for i, r := range text {
		p.out.WriteRune(r)
		if r == '\n' {
			p.builder.newLine()
			p.genCol = 0
			if srcPos >= 0 && i+1 < len(text) {
				p.mark(srcPos + i + 1)
			}
			continue
		}
		if r >= 0x10000 {
			p.genCol += 2
		} else {
			p.genCol++
		}
	}
}

func (p *mappedPrinter) mark(srcPos int) {
	line, col := p.index.lineCol(srcPos)
	p.builder.addMapping(p.genCol, line, col)
}
