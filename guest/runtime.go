package guest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/errors"
)

// HostModule is the import module name guests link against.
const HostModule = "lacewing"

// Config holds configuration for runtime creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// WASI instantiates wasi_snapshot_preview1 for guests built by toolchains
	// that expect it.
	WASI bool

	// Logger receives guest log calls and diagnostics.
	Logger *zap.Logger
}

// Runtime compiles and instantiates guests. One host module is shared by
// every guest of a Runtime.
type Runtime struct {
	rt        wazero.Runtime
	log       *zap.Logger
	instances map[string]*Handlers
	mu        sync.RWMutex
	seq       atomic.Uint64
}

// New creates a runtime with default configuration.
func New(ctx context.Context) (*Runtime, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates a runtime with custom configuration.
func NewWithConfig(ctx context.Context, cfg *Config) (*Runtime, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	r := &Runtime{
		log:       Logger(),
		instances: make(map[string]*Handlers),
	}
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Logger != nil {
			r.log = cfg.Logger
		}
	}
	r.rt = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if cfg != nil && cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.rt); err != nil {
			_ = r.rt.Close(ctx)
			return nil, errors.Wrap(errors.PhaseGuest, errors.KindInstantiation, err, "instantiate WASI")
		}
	}
	if err := r.instantiateHost(ctx); err != nil {
		_ = r.rt.Close(ctx)
		return nil, err
	}
	return r, nil
}

// Close closes every guest and the underlying wazero runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]*Handlers)
	r.mu.Unlock()
	for _, h := range instances {
		h.release()
	}
	return r.rt.Close(ctx)
}

func (r *Runtime) instance(mod api.Module) *Handlers {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[mod.Name()]
}

// Load instantiates wasm and binds its exported handlers to ws. Handlers run
// with ctx, on the pump goroutine of ws.
func (r *Runtime) Load(ctx context.Context, wasm []byte, ws *binding.Webserver) (*Handlers, error) {
	if ws == nil {
		return nil, errors.InvalidParameters(errors.PhaseGuest, "webserver")
	}
	compiled, err := r.rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindInvalidInput, err, "compile guest")
	}

	name := fmt.Sprintf("guest-%d", r.seq.Add(1))
	h := newHandlers(ctx, r, name, ws)

	// Register before instantiation so an _initialize export can already
	// call into the host module.
	r.mu.Lock()
	r.instances[name] = h
	r.mu.Unlock()

	mod, err := r.rt.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions("_initialize"))
	if err != nil {
		r.forget(name)
		_ = compiled.Close(ctx)
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindInstantiation, err, "instantiate guest")
	}
	if mod.ExportedMemory("memory") == nil {
		r.forget(name)
		_ = mod.Close(ctx)
		return nil, errors.New(errors.PhaseGuest, errors.KindMissingExport).
			Resource(name).
			Detail("guest does not export memory").
			Build()
	}
	h.mod = mod

	if err := h.bind(); err != nil {
		r.forget(name)
		_ = mod.Close(ctx)
		return nil, err
	}
	r.log.Debug("guest loaded", zap.String("module", name), zap.Int("handlers", len(h.exports)))
	return h, nil
}

func (r *Runtime) forget(name string) {
	r.mu.Lock()
	delete(r.instances, name)
	r.mu.Unlock()
}
