// Package server answers transform requests over stdio, one MessagePack
// framed request at a time, so a bundler plugin can keep one process alive
// across files.
package server

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/go-json-experiment/json"

	"github.com/elliots/useexports/internal/config"
	"github.com/elliots/useexports/internal/metrics"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnknownMethod  = errors.New("unknown method")
)

// extractMethod extracts the base method name from a requestId.
// RequestIds have format "method:id" (e.g., "transformFile:0") or just "method".
func extractMethod(requestId string) string {
	if idx := strings.Index(requestId, ":"); idx != -1 {
		return requestId[:idx]
	}
	return requestId
}

type Options struct {
	In      io.Reader
	Out     io.Writer
	Cwd     string
	Config  *config.Config
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

type Server struct {
	r      *bufio.Reader
	w      *bufio.Writer
	logger *log.Logger
	api    *API
}

func New(opts *Options) *Server {
	if opts.Cwd == "" {
		panic("Cwd is required")
	}

	api := NewAPI(&APIOptions{
		Cwd:     opts.Cwd,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})

	return &Server{
		r:      bufio.NewReader(opts.In),
		w:      bufio.NewWriter(opts.Out),
		logger: api.logger,
		api:    api,
	}
}

// Run serves requests until the input is closed or ctx is done. Failed
// requests are answered with an error message; only framing and write
// failures end the loop.
func (s *Server) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		messageType, requestId, payload, err := s.readRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if messageType != MessageTypeRequest {
			return errors.Wrapf(ErrInvalidRequest, "expected request, received: %s", messageType.String())
		}

		// Extract base method from requestId (format: "method:id" or just "method")
		method := extractMethod(requestId)
		s.logger.Debug("request", "id", requestId, "size", len(payload))

		result, err := s.handleRequest(ctx, method, payload)
		if err != nil {
			s.logger.Warn("request failed", "id", requestId, "err", err)
			// Echo back the full requestId, not just method
			if sendErr := s.sendError(requestId, err); sendErr != nil {
				return sendErr
			}
		} else {
			if sendErr := s.sendResponse(requestId, result); sendErr != nil {
				return sendErr
			}
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, method string, payload []byte) ([]byte, error) {
	switch method {
	case MethodEcho:
		return payload, nil

	case MethodLoadProject:
		var params LoadProjectParams
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, errors.Wrapf(ErrInvalidRequest, "%v", err)
		}
		resp, err := s.api.LoadProject(params.ConfigFileName)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case MethodTransformFile:
		var params TransformFileParams
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, errors.Wrapf(ErrInvalidRequest, "%v", err)
		}
		resp, err := s.api.TransformFile(ctx, params.Project, params.FileName, params.TransformSettings)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case MethodTransformSource:
		var params TransformSourceParams
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, errors.Wrapf(ErrInvalidRequest, "%v", err)
		}
		resp, err := s.api.TransformSource(ctx, params)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case MethodRelease:
		var handle string
		if err := json.Unmarshal(payload, &handle); err != nil {
			return nil, errors.Wrapf(ErrInvalidRequest, "%v", err)
		}
		return nil, s.api.Release(handle)

	default:
		return nil, errors.Wrapf(ErrUnknownMethod, "%s", method)
	}
}

func (s *Server) readRequest() (messageType MessageType, method string, payload []byte, err error) {
	t, err := s.r.ReadByte()
	if err != nil {
		return 0, "", nil, err
	}
	if MessagePackType(t) != MessagePackTypeFixedArray3 {
		return 0, "", nil, errors.Wrapf(ErrInvalidRequest, "expected 0x93, got 0x%02x", t)
	}

	t, err = s.r.ReadByte()
	if err != nil {
		return 0, "", nil, unexpectedEOF(err)
	}
	if MessagePackType(t) != MessagePackTypeU8 {
		return 0, "", nil, errors.Wrapf(ErrInvalidRequest, "expected 0xCC, got 0x%02x", t)
	}

	rawType, err := s.r.ReadByte()
	if err != nil {
		return 0, "", nil, unexpectedEOF(err)
	}
	messageType = MessageType(rawType)
	if !messageType.IsValid() {
		return 0, "", nil, errors.Wrapf(ErrInvalidRequest, "invalid message type: %d", messageType)
	}

	methodBytes, err := s.readBin()
	if err != nil {
		return 0, "", nil, unexpectedEOF(err)
	}

	payload, err = s.readBin()
	if err != nil {
		return 0, "", nil, unexpectedEOF(err)
	}

	return messageType, string(methodBytes), payload, nil
}

// unexpectedEOF turns EOF inside a frame into an error, so Run does not
// mistake a truncated frame for a clean shutdown.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (s *Server) readBin() ([]byte, error) {
	t, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}

	var size uint32
	switch MessagePackType(t) {
	case MessagePackTypeBin8:
		var size8 uint8
		if err := binary.Read(s.r, binary.BigEndian, &size8); err != nil {
			return nil, err
		}
		size = uint32(size8)
	case MessagePackTypeBin16:
		var size16 uint16
		if err := binary.Read(s.r, binary.BigEndian, &size16); err != nil {
			return nil, err
		}
		size = uint32(size16)
	case MessagePackTypeBin32:
		if err := binary.Read(s.r, binary.BigEndian, &size); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrapf(ErrInvalidRequest, "expected bin (0xC4-0xC6), got 0x%02x", t)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(s.r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Server) sendResponse(method string, result []byte) error {
	return s.writeMessage(MessageTypeResponse, method, result)
}

func (s *Server) sendError(method string, err error) error {
	return s.writeMessage(MessageTypeError, method, []byte(err.Error()))
}

func (s *Server) writeMessage(messageType MessageType, method string, payload []byte) error {
	if err := s.w.WriteByte(byte(MessagePackTypeFixedArray3)); err != nil {
		return err
	}

	if err := s.w.WriteByte(byte(MessagePackTypeU8)); err != nil {
		return err
	}
	if err := s.w.WriteByte(byte(messageType)); err != nil {
		return err
	}

	if err := writeBin(s.w, []byte(method)); err != nil {
		return err
	}
	if err := writeBin(s.w, payload); err != nil {
		return err
	}

	return s.w.Flush()
}

func writeBin(w *bufio.Writer, data []byte) error {
	length := len(data)

	switch {
	case length < 256:
		if err := w.WriteByte(byte(MessagePackTypeBin8)); err != nil {
			return err
		}
		if err := w.WriteByte(byte(length)); err != nil {
			return err
		}
	case length < 65536:
		if err := w.WriteByte(byte(MessagePackTypeBin16)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint16(length)); err != nil {
			return err
		}
	default:
		if err := w.WriteByte(byte(MessagePackTypeBin32)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(length)); err != nil {
			return err
		}
	}

	_, err := w.Write(data)
	return err
}
