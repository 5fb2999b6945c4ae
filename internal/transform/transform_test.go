package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/dop251/goja"
	"github.com/hexops/autogold/v2"
	"github.com/stretchr/testify/require"

	"github.com/elliots/useexports/internal/commonjs"
	"github.com/elliots/useexports/internal/printer"
)

var commonJS = CompilerOptions{Module: ModuleCommonJS, Target: TargetES2020}

// transformTestCode runs the full pipeline on a TypeScript source.
func transformTestCode(t *testing.T, input string, config Config) *Output {
	t.Helper()
	return transformWith(t, "test.ts", input, commonJS, config)
}

func transformWith(t *testing.T, fileName, input string, opts CompilerOptions, config Config) *Output {
	t.Helper()
	out, err := TransformSource(context.Background(), fileName, []byte(input), opts, config)
	require.NoError(t, err)
	return out
}

func TestTransformFile(t *testing.T) {
	tests := []struct {
		name            string
		input           string
		config          Config
		expectedParts   []string // Parts that should appear in output
		unexpectedParts []string // Parts that should NOT appear in output
	}{
		{
			name: "sibling call",
			input: `export function foo() {
	return 'foo';
}
export function bar() {
	return foo() + 'bar';
}`,
			config:          DefaultConfig(),
			expectedParts:   []string{`return exports.foo() + 'bar';`, `export function foo() {`},
			unexpectedParts: []string{`exports.bar`},
		},
		{
			name:          "recursive call",
			input:         `export function fact(n: number): number { return n <= 1 ? 1 : n * fact(n - 1); }`,
			config:        DefaultConfig(),
			expectedParts: []string{`n * exports.fact(n - 1)`, `export function fact(n: number)`},
		},
		{
			name:          "default export uses the default slot",
			input:         "export default function foo() { return 'foo'; }\nexport function bar() { return foo() + 'bar'; }",
			config:        DefaultConfig(),
			expectedParts: []string{`return exports.default() + 'bar';`, `export default function foo()`},
		},
		{
			name:          "export clause",
			input:         "function foo() { return 'foo'; }\nfunction bar() { return foo() + 'bar'; }\nexport { foo, bar };",
			config:        DefaultConfig(),
			expectedParts: []string{`return exports.foo() + 'bar';`, `export { foo, bar };`},
		},
		{
			name:            "export clause disabled",
			input:           "function foo() { return 'foo'; }\nfunction bar() { return foo() + 'bar'; }\nexport { foo, bar };",
			config:          Config{ExportClauses: false},
			unexpectedParts: []string{`exports.`},
		},
		{
			name:            "aliased export clause is not rewritten",
			input:           "function foo() { return 'foo'; }\nexport function bar() { return foo() + 'bar'; }\nexport { foo as baz };",
			config:          DefaultConfig(),
			expectedParts:   []string{`return foo() + 'bar';`, `export { foo as baz };`},
			unexpectedParts: []string{`exports.`},
		},
		{
			name:          "shorthand property",
			input:         "export function foo() {}\nexport const api = { foo, other: 1 };",
			config:        DefaultConfig(),
			expectedParts: []string{`{ foo: exports.foo, other: 1 }`},
		},
		{
			name:            "type positions are not rewritten",
			input:           "export function foo() { return 1; }\nlet x: typeof foo = foo;",
			config:          DefaultConfig(),
			expectedParts:   []string{`let x: typeof foo = exports.foo;`},
			unexpectedParts: []string{`typeof exports`},
		},
		{
			name:            "export default of an identifier",
			input:           "export function foo() { return 1; }\nexport default foo;",
			config:          DefaultConfig(),
			expectedParts:   []string{`export default foo;`},
			unexpectedParts: []string{`exports.`},
		},
		{
			name:            "function variables are off by default",
			input:           "export const foo = () => 1;\nexport function bar() { return foo(); }",
			config:          DefaultConfig(),
			expectedParts:   []string{`return foo();`},
			unexpectedParts: []string{`exports.foo`},
		},
		{
			name:          "function variables",
			input:         "export const foo = () => 1;\nexport const baz = (function () { return 2; });\nexport function bar() { return foo() + baz(); }",
			config:        Config{FunctionVariables: true},
			expectedParts: []string{`export const foo = () => 1;`, `return exports.foo() + exports.baz();`},
		},
		{
			name:            "ignored names",
			input:           "export function internalFoo() {}\nexport function foo() {}\nexport function bar() { internalFoo(); foo(); }",
			config:          Config{IgnoreNames: CompileIgnorePatterns([]string{"internal*"})},
			expectedParts:   []string{`internalFoo(); exports.foo();`},
			unexpectedParts: []string{`exports.internalFoo`},
		},
		{
			name:          "references before the declaration",
			input:         "export const early = () => later();\nexport function later() { return 1; }",
			config:        DefaultConfig(),
			expectedParts: []string{`() => exports.later();`},
		},
		{
			name:          "value positions beyond calls",
			input:         "export function foo() {}\nconst list = [foo];\nsetTimeout(foo, 1);\nconst kind = typeof foo;\nnew foo();",
			config:        DefaultConfig(),
			expectedParts: []string{`[exports.foo]`, `setTimeout(exports.foo, 1)`, `typeof exports.foo`, `new exports.foo()`},
		},
		{
			name:            "parameter defaults do not see body vars",
			input:           "export function foo() { return 1; }\nexport function g(x = foo()) { var foo = 2; return foo + x; }",
			config:          DefaultConfig(),
			expectedParts:   []string{`g(x = exports.foo())`, `return foo + x;`},
			unexpectedParts: []string{`exports.foo + x`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := transformTestCode(t, tt.input, tt.config)

			for _, part := range tt.expectedParts {
				if !strings.Contains(result.Code, part) {
					t.Errorf("expected output to contain %q\noutput:\n%s", part, result.Code)
				}
			}
			for _, part := range tt.unexpectedParts {
				if strings.Contains(result.Code, part) {
					t.Errorf("expected output NOT to contain %q\noutput:\n%s", part, result.Code)
				}
			}
		})
	}
}

func TestShadowSafety(t *testing.T) {
	out := transformTestCode(t, `export function foo() { return 1; }
export function a(foo: () => number) { return foo(); }
export function b() { const foo = 2; return foo; }
export function c() { { let foo = 3; foo; } return foo(); }
export function d() { try { return foo(); } catch (foo) { return foo; } }
export function e() { return [1].map(function foo() { return foo; }); }
`, DefaultConfig())

	autogold.Expect(`export function foo() { return 1; }
export function a(foo: () => number) { return foo(); }
export function b() { const foo = 2; return foo; }
export function c() { { let foo = 3; foo; } return exports.foo(); }
export function d() { try { return exports.foo(); } catch (foo) { return foo; } }
export function e() { return [1].map(function foo() { return foo; }); }
`).Equal(t, out.Code)

	reasons := make(map[RejectReason]int)
	for _, r := range out.Result.Rejected {
		if r.LocalName == "foo" {
			reasons[r.Reason]++
		}
	}
	// Function names and local declarators.
	require.Equal(t, 4, reasons[ReasonDeclarationName])
	// Parameter, local and catch bindings plus the reads of them.
	require.Equal(t, 7, reasons[ReasonShadowed])
	require.Zero(t, reasons[ReasonUnresolved])
	require.Len(t, out.Result.Rewritten, 2)
}

func TestJSXIntrinsicTagsAreNotReferences(t *testing.T) {
	out := transformWith(t, "view.tsx", `export function span() { return 1; }
export function View() { return <div><span>{span()}</span><br /></div>; }
export function br() { return <span />; }
`, commonJS, DefaultConfig())

	autogold.Expect(`export function span() { return 1; }
export function View() { return <div><span>{exports.span()}</span><br /></div>; }
export function br() { return <span />; }
`).Equal(t, out.Code)
	require.NotContains(t, out.Code, "<exports.")
	require.Len(t, out.Result.Rewritten, 1)
}

func TestDeclarationAndSpecifierExclusion(t *testing.T) {
	out := transformTestCode(t, `function foo() { return foo; }
export { foo };
export default foo;
`, DefaultConfig())

	autogold.Expect(`function foo() { return exports.foo; }
export { foo };
export default foo;
`).Equal(t, out.Code)

	var reasons []RejectReason
	for _, r := range out.Result.Rejected {
		reasons = append(reasons, r.Reason)
	}
	require.Equal(t, []RejectReason{ReasonDeclarationName, ReasonExportSpecifier, ReasonExportAssignment}, reasons)
}

func TestExportAssignment(t *testing.T) {
	out := transformTestCode(t, "export function foo() { return 1; }\nexport = foo;\n", DefaultConfig())
	require.Contains(t, out.Code, "export = foo;")
	require.Empty(t, out.Result.Rewritten)
	require.Equal(t, ReasonExportAssignment, out.Result.Rejected[len(out.Result.Rejected)-1].Reason)
}

func TestSingleRewrite(t *testing.T) {
	input := "export function foo() { return 1; }\nexport function bar() { return foo() + foo(); }\n"
	first := transformTestCode(t, input, DefaultConfig())
	require.Equal(t, 2, strings.Count(first.Code, "exports.foo()"))
	require.NotContains(t, first.Code, "exports.exports")

	// Running the output through again changes nothing.
	second := transformTestCode(t, first.Code, DefaultConfig())
	require.Equal(t, first.Code, second.Code)
	require.False(t, second.Result.Changed())
}

func TestNoExportsPrintsIdentically(t *testing.T) {
	inputs := []string{
		"",
		"// just a comment\n",
		"function foo() { return foo(); }\nfoo();\n",
		"export const x = 1;\nexport class C { m() { return x; } }\n",
		"import { foo } from './foo';\nexport { foo };\nexport { bar } from './bar';\nfoo();\n",
	}
	for _, input := range inputs {
		out := transformTestCode(t, input, DefaultConfig())
		require.Equal(t, input, out.Code)
		require.False(t, out.Result.Changed())
	}
}

func TestIdempotenceOfNonMatches(t *testing.T) {
	input := `// header comment
import { helper } from "./helper";

/** Docs stay. */
export function foo(a: number): number {
	return helper(a) * 2; // trailing
}

export function bar() {
	return   foo(1)   ;
}
`
	out := transformTestCode(t, input, DefaultConfig())
	require.Equal(t, strings.Replace(input, "return   foo(1)", "return   exports.foo(1)", 1), out.Code)
}

func TestCollectedExports(t *testing.T) {
	out := transformTestCode(t, `export function foo() {}
export default function bar() {}
export default function () {}
function baz() {}
export { baz, baz as qux, foo };
export { remote } from "./remote";
`, DefaultConfig())

	var got []string
	for _, e := range out.Result.Exports {
		got = append(got, e.LocalName+"->"+e.PublicName)
	}
	require.Equal(t, []string{"foo->foo", "bar->default", "baz->baz"}, got)
	require.True(t, out.Result.Exports[1].IsDefault)
}

func TestES3DefaultSlot(t *testing.T) {
	out := transformWith(t, "test.js",
		"export default function foo() { return 1; }\nexport function bar() { return foo(); }\n",
		CompilerOptions{Target: TargetES3}, DefaultConfig())
	require.Contains(t, out.Code, `return exports["default"]();`)
}

func TestCustomExportsIdentifier(t *testing.T) {
	out := transformTestCode(t, "export default function foo() {}\nfoo();\n",
		Config{ExportsIdentifier: "module.exports", DefaultSlot: "main"})
	require.Contains(t, out.Code, "\nmodule.exports.main();")
}

func TestModuleTargetGuard(t *testing.T) {
	tests := []struct {
		opts      CompilerOptions
		supported bool
	}{
		{CompilerOptions{Module: ModuleCommonJS}, true},
		{CompilerOptions{Module: ModuleCommonJS, Target: TargetESNext}, true},
		{CompilerOptions{}, true},
		{CompilerOptions{Target: TargetES3}, true},
		{CompilerOptions{Target: TargetES5}, true},
		{CompilerOptions{Target: TargetES2015}, false},
		{CompilerOptions{Module: ModuleESNext}, false},
		{CompilerOptions{Module: ModuleES2015, Target: TargetES5}, false},
		{CompilerOptions{Module: ModuleNodeNext}, false},
		{CompilerOptions{Module: ModuleAMD}, false},
		{CompilerOptions{Module: ModuleNone}, false},
	}
	for _, tt := range tests {
		tr, err := New(tt.opts, DefaultConfig())
		if tt.supported {
			require.NoError(t, err, "%+v", tt.opts)
			require.NotNil(t, tr)
			continue
		}
		require.Error(t, err, "%+v", tt.opts)
		require.Nil(t, tr)
		require.True(t, errors.Is(err, ErrUnsupportedModuleTarget))

		var target *UnsupportedModuleTargetError
		require.True(t, errors.As(err, &target))
		require.Equal(t, tt.opts.Module, target.Module)
		require.Contains(t, err.Error(), tt.opts.Module.String())
	}
}

func TestUnsupportedTargetProducesNoOutput(t *testing.T) {
	out, err := TransformSource(context.Background(), "test.ts",
		[]byte("export function foo() {}\nfoo();\n"),
		CompilerOptions{Module: ModuleESNext}, DefaultConfig())
	require.Nil(t, out)
	require.ErrorIs(t, err, ErrUnsupportedModuleTarget)
	require.Contains(t, err.Error(), "esnext")
}

func TestParseModuleOptions(t *testing.T) {
	m, err := ParseModuleKind("CommonJS")
	require.NoError(t, err)
	require.Equal(t, ModuleCommonJS, m)

	m, err = ParseModuleKind("es6")
	require.NoError(t, err)
	require.Equal(t, ModuleES2015, m)

	_, err = ParseModuleKind("bogus")
	require.Error(t, err)

	target, err := ParseScriptTarget("ES5")
	require.NoError(t, err)
	require.Equal(t, TargetES5, target)

	target, err = ParseScriptTarget("")
	require.NoError(t, err)
	require.Equal(t, TargetUnset, target)
}

func TestSourceMapOutput(t *testing.T) {
	out := transformTestCode(t, "export function foo() {}\nfoo();\n", DefaultConfig())
	require.Equal(t, "export function foo() {}\nexports.foo();\n", out.Code)
	require.Equal(t, []string{"test.ts"}, out.SourceMap.Sources)

	// An unchanged print maps the same lines.
	plain, _ := printer.PrintWithSourceMap(out.File)
	require.Equal(t, out.Code, plain)
}

// TestStubbingRoundTrip lowers the rewritten module to CommonJS, runs it and
// replaces an export at runtime.
func TestStubbingRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		config Config
		slot   string
		want   string
	}{
		{
			name:   "simple",
			input:  "export function foo(): string {\n  return 'foo';\n}\nexport function bar(): string {\n  return foo() + 'bar';\n}\n",
			config: DefaultConfig(),
			slot:   "foo",
			want:   "replacedbar",
		},
		{
			name:   "default",
			input:  "export default function foo(): string {\n  return 'foo';\n}\nexport function bar(): string {\n  return foo() + 'bar';\n}\n",
			config: DefaultConfig(),
			slot:   "default",
			want:   "replacedbar",
		},
		{
			name:   "export statement",
			input:  "function foo(): string {\n  return 'foo';\n}\nfunction bar(): string {\n  return foo() + 'bar';\n}\nexport { foo, bar };\n",
			config: DefaultConfig(),
			slot:   "foo",
			want:   "replacedbar",
		},
		{
			name:   "aliased export keeps the local binding",
			input:  "function foo(): string {\n  return 'foo';\n}\nexport function bar(): string {\n  return foo() + 'bar';\n}\nexport { foo as baz };\n",
			config: DefaultConfig(),
			slot:   "baz",
			want:   "foobar",
		},
		{
			name:   "function variable",
			input:  "export const foo = (): string => 'foo';\nexport function bar(): string {\n  return foo() + 'bar';\n}\n",
			config: Config{ExportClauses: true, FunctionVariables: true},
			slot:   "foo",
			want:   "replacedbar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := transformTestCode(t, tt.input, tt.config)
			code, err := commonjs.Lower(out.File)
			require.NoError(t, err)

			vm := goja.New()
			exports := vm.NewObject()
			require.NoError(t, vm.Set("exports", exports))
			_, err = vm.RunString(code)
			require.NoError(t, err, code)

			bar, ok := goja.AssertFunction(exports.Get("bar"))
			require.True(t, ok)
			v, err := bar(goja.Undefined())
			require.NoError(t, err)
			require.Equal(t, "foobar", v.String())

			require.NoError(t, exports.Set(tt.slot, func(goja.FunctionCall) goja.Value {
				return vm.ToValue("replaced")
			}))
			v, err = bar(goja.Undefined())
			require.NoError(t, err)
			require.Equal(t, tt.want, v.String())
		})
	}
}
