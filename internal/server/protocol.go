package server

import (
	"github.com/elliots/useexports/internal/printer"
	"github.com/elliots/useexports/internal/transform"
)

// Each frame is a MessagePack fixed array of three elements: the message
// type as a u8, the request id as bin, and the JSON payload as bin.

type MessageType uint8

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeRequest
	MessageTypeCallResponse
	MessageTypeCallError
	MessageTypeResponse
	MessageTypeError
	MessageTypeCall
)

func (m MessageType) IsValid() bool {
	return m >= MessageTypeRequest && m <= MessageTypeCall
}

func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "request"
	case MessageTypeCallResponse:
		return "call-response"
	case MessageTypeCallError:
		return "call-error"
	case MessageTypeResponse:
		return "response"
	case MessageTypeError:
		return "error"
	case MessageTypeCall:
		return "call"
	default:
		return "unknown"
	}
}

type MessagePackType uint8

const (
	MessagePackTypeFixedArray3 MessagePackType = 0x93
	MessagePackTypeBin8        MessagePackType = 0xC4
	MessagePackTypeBin16       MessagePackType = 0xC5
	MessagePackTypeBin32       MessagePackType = 0xC6
	MessagePackTypeU8          MessagePackType = 0xCC
)

// API method names
const (
	MethodEcho            = "echo"
	MethodLoadProject     = "loadProject"
	MethodTransformFile   = "transformFile"
	MethodTransformSource = "transformSource"
	MethodRelease         = "release"
)

// Request/Response types

type LoadProjectParams struct {
	ConfigFileName string `json:"configFileName"`
}

type ProjectResponse struct {
	Id         string   `json:"id"`
	ConfigFile string   `json:"configFile"`
	RootFiles  []string `json:"rootFiles"`
	Module     string   `json:"module"`
	Target     string   `json:"target"`
	// Supported is false when the project's module target does not emit
	// CommonJS. Transforms in such a project fail.
	Supported bool `json:"supported"`
}

// TransformSettings override the server's configuration for one request.
type TransformSettings struct {
	ExportsIdentifier string   `json:"exportsIdentifier,omitempty"`
	DefaultSlot       string   `json:"defaultSlot,omitempty"`
	ExportClauses     *bool    `json:"exportClauses,omitempty"`
	FunctionVariables *bool    `json:"functionVariables,omitempty"`
	IgnoreNames       []string `json:"ignoreNames,omitempty"` // Glob patterns for exported names to skip
	Emit              string   `json:"emit,omitempty"`        // "source" (default) or "commonjs"
}

type TransformFileParams struct {
	Project  string `json:"project"`
	FileName string `json:"fileName"`

	TransformSettings `json:",inline"`
}

type TransformSourceParams struct {
	FileName string `json:"fileName"` // Virtual filename, picks the grammar
	Source   string `json:"source"`
	Module   string `json:"module,omitempty"`
	Target   string `json:"target,omitempty"`

	TransformSettings `json:",inline"`
}

type ExportInfo struct {
	LocalName  string `json:"localName"`
	PublicName string `json:"publicName"`
}

type RejectionInfo struct {
	Name   string `json:"name"`
	Pos    int    `json:"pos"`
	Reason string `json:"reason"`
}

type TransformResponse struct {
	Code      string                `json:"code"`
	SourceMap *printer.RawSourceMap `json:"sourceMap,omitempty"`
	Exports   []ExportInfo          `json:"exports"`
	Rewritten int                   `json:"rewritten"`
	Rejected  []RejectionInfo       `json:"rejected,omitempty"`
}

func newTransformResponse(code string, out *transform.Output) *TransformResponse {
	resp := &TransformResponse{
		Code:      code,
		Exports:   make([]ExportInfo, 0, len(out.Result.Exports)),
		Rewritten: len(out.Result.Rewritten),
	}
	if code == out.Code {
		resp.SourceMap = out.SourceMap
	}
	for _, e := range out.Result.Exports {
		resp.Exports = append(resp.Exports, ExportInfo{LocalName: e.LocalName, PublicName: e.PublicName})
	}
	for _, r := range out.Result.Rejected {
		resp.Rejected = append(resp.Rejected, RejectionInfo{Name: r.LocalName, Pos: r.Pos, Reason: string(r.Reason)})
	}
	return resp
}
