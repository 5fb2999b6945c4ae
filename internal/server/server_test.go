package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"

	"github.com/elliots/useexports/internal/metrics"
)

type frame struct {
	messageType MessageType
	id          string
	payload     []byte
}

func encodeRequests(t *testing.T, requests ...frame) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	for _, req := range requests {
		require.NoError(t, w.WriteByte(byte(MessagePackTypeFixedArray3)))
		require.NoError(t, w.WriteByte(byte(MessagePackTypeU8)))
		require.NoError(t, w.WriteByte(byte(req.messageType)))
		require.NoError(t, writeBin(w, []byte(req.id)))
		require.NoError(t, writeBin(w, req.payload))
	}
	require.NoError(t, w.Flush())
	return &buf
}

func request(t *testing.T, id string, params any) frame {
	t.Helper()
	payload, err := json.Marshal(params)
	require.NoError(t, err)
	return frame{messageType: MessageTypeRequest, id: id, payload: payload}
}

// serve runs a server over the given requests and decodes its replies.
func serve(t *testing.T, cwd string, requests ...frame) ([]frame, *Server) {
	t.Helper()
	var out bytes.Buffer
	s := New(&Options{
		In:      encodeRequests(t, requests...),
		Out:     &out,
		Cwd:     cwd,
		Logger:  log.New(io.Discard),
		Metrics: metrics.New(),
	})
	require.NoError(t, s.Run(context.Background()))

	reader := &Server{r: bufio.NewReader(&out)}
	var replies []frame
	for {
		mt, id, payload, err := reader.readRequest()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		replies = append(replies, frame{messageType: mt, id: id, payload: payload})
	}
	return replies, s
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	require.Equal(t, MessageTypeResponse, f.messageType, string(f.payload))
	var v T
	require.NoError(t, json.Unmarshal(f.payload, &v))
	return v
}

func TestEcho(t *testing.T) {
	replies, _ := serve(t, t.TempDir(), frame{MessageTypeRequest, "echo:1", []byte(`"hello"`)})
	require.Len(t, replies, 1)
	require.Equal(t, "echo:1", replies[0].id)
	require.Equal(t, `"hello"`, string(replies[0].payload))
}

func TestTransformSource(t *testing.T) {
	replies, s := serve(t, t.TempDir(),
		request(t, "transformSource:0", TransformSourceParams{
			FileName: "mod.ts",
			Source:   "export function foo() { return 1; }\nexport function bar() { return foo(); }\n",
			Module:   "commonjs",
		}),
		request(t, "transformSource:1", TransformSourceParams{
			FileName: "mod.ts",
			Source:   "export function foo() { return 1; }\nexport function bar() { return foo(); }\n",
			Module:   "commonjs",
		}),
		request(t, "transformSource:2", TransformSourceParams{
			FileName:          "mod.ts",
			Source:            "export function foo() { return 1; }\nexport function bar() { return foo(); }\n",
			Module:            "commonjs",
			TransformSettings: TransformSettings{Emit: "commonjs"},
		}),
	)
	require.Len(t, replies, 3)

	resp := decode[TransformResponse](t, replies[0])
	require.Equal(t, "export function foo() { return 1; }\nexport function bar() { return exports.foo(); }\n", resp.Code)
	require.Equal(t, 1, resp.Rewritten)
	require.Equal(t, []ExportInfo{{LocalName: "foo", PublicName: "foo"}, {LocalName: "bar", PublicName: "bar"}}, resp.Exports)
	require.NotNil(t, resp.SourceMap)
	require.Equal(t, []string{"mod.ts"}, resp.SourceMap.Sources)

	cached := decode[TransformResponse](t, replies[1])
	require.Equal(t, resp.Code, cached.Code)
	require.Len(t, s.api.cache, 2)

	lowered := decode[TransformResponse](t, replies[2])
	require.Contains(t, lowered.Code, "exports.foo = foo;")
	require.Contains(t, lowered.Code, "return exports.foo();")
	require.Nil(t, lowered.SourceMap)
}

func TestTransformSourceSettings(t *testing.T) {
	off := false
	replies, _ := serve(t, t.TempDir(),
		request(t, "transformSource", TransformSourceParams{
			FileName: "mod.ts",
			Source:   "function foo() {}\nexport { foo };\nexport function bar() { foo(); }\n",
			TransformSettings: TransformSettings{
				ExportsIdentifier: "__exports",
				ExportClauses:     &off,
			},
		}),
		request(t, "transformSource", TransformSourceParams{
			FileName: "mod.ts",
			Source:   "export function _hidden() {}\nexport function bar() { _hidden(); }\n",
			TransformSettings: TransformSettings{
				IgnoreNames: []string{"_*"},
			},
		}),
	)
	require.Len(t, replies, 2)

	resp := decode[TransformResponse](t, replies[0])
	require.Equal(t, "function foo() {}\nexport { foo };\nexport function bar() { foo(); }\n", resp.Code)
	require.Equal(t, 0, resp.Rewritten)

	resp = decode[TransformResponse](t, replies[1])
	require.Equal(t, 0, resp.Rewritten)
	require.Equal(t, []ExportInfo{{LocalName: "bar", PublicName: "bar"}}, resp.Exports)
}

func TestTransformSourceErrors(t *testing.T) {
	replies, _ := serve(t, t.TempDir(),
		request(t, "transformSource:esm", TransformSourceParams{FileName: "mod.ts", Source: "export function foo() {}", Module: "esnext"}),
		request(t, "transformSource:syntax", TransformSourceParams{FileName: "mod.ts", Source: "function (", Module: "commonjs"}),
		request(t, "transformSource:emit", TransformSourceParams{FileName: "mod.ts", Source: "", TransformSettings: TransformSettings{Emit: "amd"}}),
		frame{MessageTypeRequest, "transformSource:json", []byte(`{`)},
		frame{MessageTypeRequest, "bogus:1", []byte(`{}`)},
	)
	require.Len(t, replies, 5)
	for _, r := range replies {
		require.Equal(t, MessageTypeError, r.messageType, r.id)
	}
	require.Contains(t, string(replies[0].payload), "unsupported module target")
	require.Contains(t, string(replies[1].payload), "mod.ts")
	require.Contains(t, string(replies[2].payload), "unknown emit mode")
	require.Contains(t, string(replies[3].payload), "invalid request")
	require.Contains(t, string(replies[4].payload), "unknown method")
}

func TestProjectLifecycle(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tsconfig.json"), []byte(`{
  "compilerOptions": { "module": "commonjs", "target": "es2020" }, // trailing
  "include": ["src"],
}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "a.ts"),
		[]byte("export default function main() { return helper(); }\nexport function helper() { return main; }\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "other.ts"), []byte("export function x() {}\n"), 0o644))

	replies, _ := serve(t, root,
		request(t, "loadProject", LoadProjectParams{ConfigFileName: "tsconfig.json"}),
		request(t, "transformFile:0", TransformFileParams{Project: "p1", FileName: "src/a.ts"}),
		request(t, "transformFile:1", TransformFileParams{Project: "p1", FileName: "other.ts"}),
		request(t, "release", "p1"),
		request(t, "transformFile:2", TransformFileParams{Project: "p1", FileName: "src/a.ts"}),
		request(t, "release", "p1"),
	)
	require.Len(t, replies, 6)

	proj := decode[ProjectResponse](t, replies[0])
	require.Equal(t, "p1", proj.Id)
	require.Equal(t, filepath.Join(root, "tsconfig.json"), proj.ConfigFile)
	require.Equal(t, []string{filepath.Join(root, "src", "a.ts")}, proj.RootFiles)
	require.Equal(t, "commonjs", proj.Module)
	require.Equal(t, "es2020", proj.Target)
	require.True(t, proj.Supported)

	resp := decode[TransformResponse](t, replies[1])
	require.Equal(t, "export default function main() { return exports.helper(); }\nexport function helper() { return exports.default; }\n", resp.Code)
	require.Equal(t, 2, resp.Rewritten)

	require.Equal(t, MessageTypeError, replies[2].messageType)
	require.Contains(t, string(replies[2].payload), "source file not in project")

	require.Equal(t, MessageTypeResponse, replies[3].messageType)
	require.Equal(t, MessageTypeError, replies[4].messageType)
	require.Contains(t, string(replies[4].payload), "project not found")
	require.Equal(t, MessageTypeError, replies[5].messageType)
}

func TestRunRejectsTruncatedFrame(t *testing.T) {
	var out bytes.Buffer
	s := New(&Options{
		In:     bytes.NewReader([]byte{byte(MessagePackTypeFixedArray3), byte(MessagePackTypeU8)}),
		Out:    &out,
		Cwd:    t.TempDir(),
		Logger: log.New(io.Discard),
	})
	require.ErrorIs(t, s.Run(context.Background()), io.ErrUnexpectedEOF)
}

func TestRunRejectsNonRequest(t *testing.T) {
	var out bytes.Buffer
	s := New(&Options{
		In:     encodeRequests(t, frame{MessageTypeResponse, "x", nil}),
		Out:    &out,
		Cwd:    t.TempDir(),
		Logger: log.New(io.Discard),
	})
	require.ErrorIs(t, s.Run(context.Background()), ErrInvalidRequest)
}
