package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/vfs"
)

// Config holds configuration for engine creation.
type Config struct {
	Logger *zap.Logger

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// StartFunctions run after instantiation. Missing exports are skipped.
	// nil means "_initialize".
	StartFunctions []string
}

// Engine is a wazero runtime with WASI preview1 and the VFS host module
// instantiated, ready to load the engine build.
type Engine struct {
	runtime wazero.Runtime
	host    *Host
	log     *zap.Logger
	start   []string
}

// New creates a runtime bound to v.
func New(ctx context.Context, v *vfs.VFS, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("engine")

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := InstantiateWASI(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate WASI")
	}
	host := NewHost(v, log)
	if _, err := host.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}

	start := cfg.StartFunctions
	if start == nil {
		start = []string{"_initialize"}
	}
	return &Engine{runtime: r, host: host, log: log, start: start}, nil
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime { return e.runtime }

// Load compiles and instantiates wasmBytes under name. The module may
// import from "opfs" and "wasi_snapshot_preview1".
func (e *Engine) Load(ctx context.Context, name string, wasmBytes []byte) (api.Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile "+name)
	}
	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions(e.start...)
	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "instantiate "+name)
	}
	if mod.Memory() == nil {
		_ = mod.Close(ctx)
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Value(name).
			Detail("module %s exports no memory", name).
			Build()
	}
	e.log.Debug("module loaded",
		zap.String("name", name),
		zap.Uint32("memory", mod.Memory().Size()))
	return mod, nil
}

// Module returns a loaded module by name, or nil.
func (e *Engine) Module(name string) api.Module { return e.runtime.Module(name) }

// Host returns the VFS host bindings.
func (e *Engine) Host() *Host { return e.host }

// Close closes every loaded module and the runtime. The VFS is left open.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
