package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/go-json-experiment/json"
	"github.com/zeebo/xxh3"

	"github.com/elliots/useexports/internal/commonjs"
	"github.com/elliots/useexports/internal/config"
	"github.com/elliots/useexports/internal/metrics"
	"github.com/elliots/useexports/internal/project"
	"github.com/elliots/useexports/internal/transform"
)

// maxCacheEntries bounds the result cache. It is dropped wholesale when
// full.
const maxCacheEntries = 512

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrFileNotInProject = errors.New("source file not in project")
)

type APIOptions struct {
	Cwd     string
	Config  *config.Config
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

type API struct {
	cwd     string
	config  *config.Config
	logger  *log.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	projects map[string]*project.Project
	nextId   int
	cache    map[uint64]*TransformResponse
}

func NewAPI(opts *APIOptions) *API {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &API{
		cwd:      opts.Cwd,
		config:   cfg,
		logger:   logger,
		metrics:  opts.Metrics,
		projects: make(map[string]*project.Project),
		cache:    make(map[uint64]*TransformResponse),
	}
}

func (a *API) LoadProject(configFileName string) (*ProjectResponse, error) {
	configFileName = a.toAbsolutePath(configFileName)

	proj, err := project.Load(configFileName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open project")
	}
	opts, err := a.config.ApplyCompilerOptions(proj.Options)
	if err != nil {
		return nil, err
	}
	proj.Options = opts

	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextId++
	id := fmt.Sprintf("p%d", a.nextId)
	a.projects[id] = proj

	a.logger.Info("project loaded", "id", id, "config", proj.ConfigPath, "files", len(proj.Files), "module", opts.Module, "target", opts.Target)
	return &ProjectResponse{
		Id:         id,
		ConfigFile: proj.ConfigPath,
		RootFiles:  proj.Files,
		Module:     opts.Module.String(),
		Target:     opts.Target.String(),
		Supported:  transform.CheckModuleTarget(opts) == nil,
	}, nil
}

// TransformFile transforms a file of a loaded project with the project's
// compiler options.
func (a *API) TransformFile(ctx context.Context, projectId string, fileName string, settings TransformSettings) (*TransformResponse, error) {
	a.mu.Lock()
	proj, ok := a.projects[projectId]
	a.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrProjectNotFound, "%s", projectId)
	}

	fileName = a.toAbsolutePath(fileName)
	if !proj.Contains(fileName) {
		return nil, errors.Wrapf(ErrFileNotInProject, "%s", fileName)
	}
	src, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", fileName)
	}
	return a.transform(ctx, fileName, src, proj.Options, settings)
}

// TransformSource transforms a standalone source string. Module and target
// fall back to the server configuration.
func (a *API) TransformSource(ctx context.Context, params TransformSourceParams) (*TransformResponse, error) {
	module, target := params.Module, params.Target
	if module == "" {
		module = a.config.Module
	}
	if target == "" {
		target = a.config.Target
	}
	var opts transform.CompilerOptions
	var err error
	if opts.Module, err = transform.ParseModuleKind(module); err != nil {
		return nil, err
	}
	if opts.Target, err = transform.ParseScriptTarget(target); err != nil {
		return nil, err
	}
	return a.transform(ctx, params.FileName, []byte(params.Source), opts, params.TransformSettings)
}

func (a *API) transform(ctx context.Context, fileName string, src []byte, opts transform.CompilerOptions, settings TransformSettings) (*TransformResponse, error) {
	logger := a.logger.With("file", fileName)
	switch settings.Emit {
	case "", config.EmitSource, config.EmitCommonJS:
	default:
		return nil, errors.Wrapf(ErrInvalidRequest, "unknown emit mode %q", settings.Emit)
	}

	key, err := cacheKey(fileName, src, opts, settings)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	cached, hit := a.cache[key]
	a.mu.Unlock()
	a.metrics.ObserveCache(hit)
	if hit {
		logger.Debug("cache hit")
		return cached, nil
	}

	t, err := transform.New(opts, a.transformConfig(settings), transform.WithLogger(logger))
	if err != nil {
		if errors.Is(err, transform.ErrUnsupportedModuleTarget) {
			a.metrics.ObserveUnsupported()
		}
		return nil, err
	}

	start := time.Now()
	out, err := t.TransformSource(ctx, fileName, src)
	if err != nil {
		a.metrics.ObserveError()
		return nil, err
	}
	a.metrics.ObserveResult("server", out.Result, time.Since(start))

	code := out.Code
	if settings.Emit == config.EmitCommonJS {
		if code, err = commonjs.Lower(out.File); err != nil {
			return nil, err
		}
	}

	resp := newTransformResponse(code, out)
	a.mu.Lock()
	if len(a.cache) >= maxCacheEntries {
		clear(a.cache)
	}
	a.cache[key] = resp
	a.mu.Unlock()

	logger.Debug("transformed", "rewritten", resp.Rewritten, "length", len(code))
	return resp, nil
}

func (a *API) transformConfig(s TransformSettings) transform.Config {
	cfg := a.config.TransformConfig()
	if s.ExportsIdentifier != "" {
		cfg.ExportsIdentifier = s.ExportsIdentifier
	}
	if s.DefaultSlot != "" {
		cfg.DefaultSlot = s.DefaultSlot
	}
	if s.ExportClauses != nil {
		cfg.ExportClauses = *s.ExportClauses
	}
	if s.FunctionVariables != nil {
		cfg.FunctionVariables = *s.FunctionVariables
	}
	if len(s.IgnoreNames) > 0 {
		cfg.IgnoreNames = append(cfg.IgnoreNames, transform.CompileIgnorePatterns(s.IgnoreNames)...)
	}
	return cfg
}

// cacheKey hashes everything a transform result depends on.
func cacheKey(fileName string, src []byte, opts transform.CompilerOptions, s TransformSettings) (uint64, error) {
	settings, err := json.Marshal(s)
	if err != nil {
		return 0, errors.Wrap(err, "encode settings")
	}
	h := xxh3.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00", fileName, opts.Module, opts.Target)
	h.Write(settings)
	h.Write([]byte{0})
	h.Write(src)
	return h.Sum64(), nil
}

func (a *API) Release(handle string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.projects[handle]; ok {
		delete(a.projects, handle)
		a.logger.Debug("project released", "id", handle)
		return nil
	}

	return errors.Newf("handle not found: %s", handle)
}

func (a *API) toAbsolutePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(a.cwd, path)
}
