package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliots/useexports/internal/ast"
)

func TestLanguageFor(t *testing.T) {
	tests := []struct {
		fileName string
		want     ast.Language
		err      bool
	}{
		{"a.ts", ast.LanguageTypeScript, false},
		{"a.MTS", ast.LanguageTypeScript, false},
		{"a.cts", ast.LanguageTypeScript, false},
		{"a.tsx", ast.LanguageTSX, false},
		{"a.js", ast.LanguageJavaScript, false},
		{"a.jsx", ast.LanguageJavaScript, false},
		{"a.mjs", ast.LanguageJavaScript, false},
		{"a.json", "", true},
		{"Makefile", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			got, err := LanguageFor(tt.fileName)
			if tt.err {
				require.ErrorIs(t, err, ErrUnsupportedLanguage)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestIsSourceFile(t *testing.T) {
	require.True(t, IsSourceFile("src/a.ts"))
	require.True(t, IsSourceFile("src/a.jsx"))
	require.False(t, IsSourceFile("src/a.d.ts"))
	require.False(t, IsSourceFile("src/a.d.mts"))
	require.False(t, IsSourceFile("src/a.css"))
}

func TestParseAssignsPreorderIDs(t *testing.T) {
	file, err := ParseFile(context.Background(), "a.ts", []byte("export function foo(a: number) { return a; }\n"))
	require.NoError(t, err)

	require.Equal(t, 0, file.Root.ID)
	require.Equal(t, ast.Kind("program"), file.Root.Kind)

	prev := -1
	ast.Walk(file.Root, func(n *ast.Node) bool {
		require.Greater(t, n.ID, prev)
		require.Same(t, n, file.Node(n.ID))
		prev = n.ID
		return true
	})
	require.Equal(t, prev+1, file.NodeCount())
}

func TestParseFields(t *testing.T) {
	file, err := ParseFile(context.Background(), "a.ts", []byte("export default function foo() {}\n"))
	require.NoError(t, err)

	stmt := file.Statements()[0]
	require.Equal(t, ast.KindExportStatement, stmt.Kind)
	decl := stmt.ChildByField("declaration")
	require.NotNil(t, decl)
	require.True(t, ast.IsFunctionDeclaration(decl.Kind))
	require.Equal(t, "foo", decl.Name())
	require.True(t, stmt.HasToken("default"))
}

func TestParseKeepsTrivia(t *testing.T) {
	src := "// header\n\nexport function foo() {\n  /* body */ return 1;\t\n}\n\n// trailing\n"
	file, err := ParseFile(context.Background(), "a.ts", []byte(src))
	require.NoError(t, err)

	var sb strings.Builder
	ast.Walk(file.Root, func(n *ast.Node) bool {
		if n.IsLeaf() {
			sb.WriteString(n.Leading)
			sb.WriteString(n.Text)
		}
		return true
	})
	sb.WriteString(file.Trailing)
	require.Equal(t, src, sb.String())
}

func TestParseErrors(t *testing.T) {
	ctx := context.Background()

	_, err := ParseFile(ctx, "a.ts", []byte("const = ;\n"))
	require.ErrorIs(t, err, ErrSyntax)
	require.Contains(t, err.Error(), "a.ts:1:")

	_, err = ParseFile(ctx, "a.ts", []byte{0xff, 0xfe})
	require.ErrorIs(t, err, ErrInvalidContent)

	_, err = New(WithMaxFileSize(4)).Parse(ctx, "a.ts", []byte("const x = 1;"))
	require.ErrorIs(t, err, ErrFileTooLarge)

	_, err = ParseFile(ctx, "a.py", []byte("x = 1"))
	require.ErrorIs(t, err, ErrUnsupportedLanguage)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ParseFile(canceled, "a.ts", []byte("const x = 1;"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseTypeScriptOnlySyntax(t *testing.T) {
	_, err := ParseFile(context.Background(), "a.js", []byte("let x: number = 1;\n"))
	require.ErrorIs(t, err, ErrSyntax)

	_, err = ParseFile(context.Background(), "a.tsx", []byte("export const el = <div>{1}</div>;\n"))
	require.NoError(t, err)
}
