// Package tsbridge is the top-level facade that wires every internal
// package into one runtime: an engine context, the reflection registry a
// host populates before binding, the worker pool, the peripheral
// builtins, the AMD loader, and the binding/compile cache — the same role
// worker.go plays for its own engine+pool+webapi wiring, generalized to
// this bridge's components.
package tsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cryguy/tsbridge/internal/amd"
	"github.com/cryguy/tsbridge/internal/bindcache"
	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/builtins"
	"github.com/cryguy/tsbridge/internal/callback"
	"github.com/cryguy/tsbridge/internal/commit"
	"github.com/cryguy/tsbridge/internal/debugserver"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
	"github.com/cryguy/tsbridge/internal/tscompile"
	"github.com/cryguy/tsbridge/internal/workerpool"
)

// Config selects a Runtime's collaborators. Engine is the only required
// field; everything else has a zero-value-friendly default.
type Config struct {
	Engine jsengine.Engine

	// Workers is the fixed worker pool size (spec §4.8). Defaults to
	// runtime.NumCPU() via workerpool.New(0) when zero.
	Workers int

	// CachePath, if non-empty, opens a bindcache.Cache at that path
	// (":memory:" for a process-local, non-persistent cache). Empty
	// disables the binding cache entirely.
	CachePath string

	// DebugAddr, if non-empty, is the host:port a debugserver.Server will
	// report in its generated WebSocket/DevTools URLs. Empty disables
	// the debugger surface.
	DebugAddr string

	Log *slog.Logger
}

// Runtime is one bound script context: a registry the host populates, an
// engine context bindings get installed onto, and the peripheral
// machinery (timers, modules, cache, debugger) every committed script can
// reach.
type Runtime struct {
	cfg  Config
	log  *slog.Logger
	jc   jsengine.Ctx
	heap *bridge.Heap
	cbs  *callback.Registry
	pool *workerpool.Pool
	reg  *registry.Registry

	timers *builtins.Timers
	loader *amd.Loader
	cache  *bindcache.Cache
	debug  *debugserver.Server
}

// New builds a Runtime's context and peripheral machinery, but installs
// nothing onto the global scope yet — the host populates Registry()
// before calling Commit.
func New(cfg Config) (*Runtime, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("tsbridge: Config.Engine is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	jc, err := cfg.Engine.NewContext()
	if err != nil {
		return nil, fmt.Errorf("tsbridge: creating context: %w", err)
	}

	workers := cfg.Workers
	pool := workerpool.New(workers)

	r := &Runtime{
		cfg:  cfg,
		log:  log,
		jc:   jc,
		heap: bridge.NewHeap(),
		cbs:  callback.New(),
		pool: pool,
		reg:  registry.New(),
	}
	r.timers = builtins.NewTimers(jc, pool)
	r.loader = amd.New(jc)

	if cfg.CachePath != "" {
		c, err := bindcache.Open(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("tsbridge: opening bind cache: %w", err)
		}
		r.cache = c
	}
	if cfg.DebugAddr != "" {
		r.debug = debugserver.New(cfg.DebugAddr)
	}

	if err := r.installBuiltins(); err != nil {
		return nil, err
	}
	return r, nil
}

// Registry returns the symbol table the host registers native types,
// functions and values onto before calling Commit.
func (r *Runtime) Registry() *registry.Registry { return r.reg }

// Context returns the underlying script context, for a host that needs
// to reach into the engine directly (e.g. to register an inspector).
func (r *Runtime) Context() jsengine.Ctx { return r.jc }

// installBuiltins wires fs/path/process as AMD builtins and define/
// require onto the global scope, the peripheral modules of spec §4.11
// plus the loader of spec §4.9.
func (r *Runtime) installBuiltins() error {
	fs, err := builtins.InstallFS(r.jc)
	if err != nil {
		return fmt.Errorf("tsbridge: installing fs module: %w", err)
	}
	r.loader.RegisterBuiltin("fs", fs)

	p, err := builtins.InstallPath(r.jc)
	if err != nil {
		return fmt.Errorf("tsbridge: installing path module: %w", err)
	}
	r.loader.RegisterBuiltin("path", p)

	proc, err := builtins.InstallProcess(r.jc)
	if err != nil {
		return fmt.Errorf("tsbridge: installing process module: %w", err)
	}
	r.loader.RegisterBuiltin("process", proc)

	return r.loader.Install()
}

// Bind is a convenience wrapper for a host that wants to register
// bindings through a closure rather than holding onto Registry()
// directly: f receives the registry's global namespace.
func (r *Runtime) Bind(f func(global *registry.Namespace)) {
	f(r.reg.Global())
}

// CommitResult is what Commit produces: the generated declaration text
// plus whether it came from the binding cache.
type CommitResult struct {
	Declaration string
	CacheHit    bool
}

// Commit runs the four-phase binding commit of spec §4.7 against the
// registry the host has populated, installing every symbol onto the
// script's global scope. When a binding cache is configured, a
// fingerprint match against the last committed registry shape is
// reported via CacheHit so a caller can skip re-emitting decl files to
// disk, per spec §4.13 — Commit itself still runs the full install every
// time, since a fresh script context always needs its bindings wired
// regardless of whether the declaration text changed.
func (r *Runtime) Commit() (*CommitResult, error) {
	env := commit.Env{
		Engine:    r.cfg.Engine,
		Heap:      r.heap,
		Callbacks: r.cbs,
		Pool:      r.pool,
		Timers:    r.timers,
		Log:       r.log,
	}
	res, err := commit.Commit(r.jc, r.reg, env)
	if err != nil {
		return nil, fmt.Errorf("tsbridge: commit: %w", err)
	}

	out := &CommitResult{Declaration: res.Declaration}
	if r.cache == nil {
		return out, nil
	}

	fp := bindcache.Fingerprint(r.reg)
	cached, hit, err := r.cache.Lookup(fp)
	if err != nil {
		r.log.Warn("bind cache lookup failed", "error", err)
		return out, nil
	}
	if hit && cached == res.Declaration {
		out.CacheHit = true
	}
	if err := r.cache.Store(fp, res.Declaration); err != nil {
		r.log.Warn("bind cache store failed", "error", err)
	}
	return out, nil
}

// CompileProject runs the TypeScript compiler pass of spec §4.10 over
// root and evaluates every compiled file's AMD define() call against the
// runtime's context, making each file requireable by its relative-path
// module id.
func (r *Runtime) CompileProject(goCtx context.Context, root string) error {
	out, err := tscompile.NewProject(root).Compile()
	if err != nil {
		return fmt.Errorf("tsbridge: compiling %s: %w", root, err)
	}
	for _, f := range out.Files {
		if _, err := r.jc.RunScript(goCtx, f.Source, f.ID+".js"); err != nil {
			return fmt.Errorf("tsbridge: evaluating compiled module %q: %w", f.ID, err)
		}
	}
	return nil
}

// Run requires entryModuleID (a module id produced by CompileProject) and
// returns its exports, the moment script actually starts running on top
// of the committed bindings.
func (r *Runtime) Run(entryModuleID string) (jsengine.Value, error) {
	v, err := r.loader.Require(entryModuleID)
	if err != nil {
		return nil, fmt.Errorf("tsbridge: running %q: %w", entryModuleID, err)
	}
	return v, nil
}

// Drain pumps the worker pool's completion queue on the calling
// goroutine, running every finished Job.AfterComplete (and therefore any
// script callback a worker's result triggers) on the host thread, per
// spec §4.8 and §5.
func (r *Runtime) Drain() { r.pool.Drain() }

// DebugServer returns the inspector HTTP/WebSocket surface, or nil if
// Config.DebugAddr was empty.
func (r *Runtime) DebugServer() *debugserver.Server { return r.debug }

// Close shuts down the worker pool and releases the engine context's
// collaborators. It does not dispose the underlying jsengine.Engine,
// which the caller owns and may reuse for another Runtime.
func (r *Runtime) Close() error {
	r.pool.Shutdown()
	r.cbs.DestroyAll()
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}
