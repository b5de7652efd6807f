// Command tsbridge is the thin filesystem/CLI boundary of spec §6: given a
// script-root directory, it compiles every .ts file there, commits the
// registry a host would normally populate in-process, writes the
// generated declaration files beneath <root>/internal/lib, and runs the
// entry module.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cryguy/tsbridge"
)

// builtinsDecl is the ambient declaration for the AMD loader globals and
// peripheral modules of spec §4.9/§4.11 — surface declgen never sees,
// since none of it is registry-backed.
const builtinsDecl = `declare function define(id: string, deps: string[], factory: (...args: any[]) => any): void;
declare function require(id: string): any;

declare module "fs" {
  export function existsSync(path: string): boolean;
  export function readFileSync(path: string): string;
  export function writeFileSync(path: string, data: string): void;
  export function readdirSync(path: string): string[];
}

declare module "path" {
  export function join(...parts: string[]): string;
  export function resolve(...parts: string[]): string;
  export function basename(path: string): string;
  export function dirname(path: string): string;
  export function extname(path: string): string;
}
`

func main() {
	var (
		root      = flag.String("root", ".", "script-root directory to compile and run")
		entry     = flag.String("entry", "", "module id of the entry point (relative path without .ts, required)")
		workers   = flag.Int("workers", 0, "worker pool size (0 = runtime.NumCPU())")
		cachePath = flag.String("cache", "", "path to the binding/compile cache database (empty disables it)")
		debugAddr = flag.String("debug", "", "host:port reported in the inspector's WebSocket/DevTools URLs (empty disables it)")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *entry == "" {
		log.Error("missing -entry")
		os.Exit(2)
	}

	if err := run(*root, *entry, *workers, *cachePath, *debugAddr, log); err != nil {
		log.Error("tsbridge failed", "error", err)
		os.Exit(1)
	}
}

func run(root, entry string, workers int, cachePath, debugAddr string, log *slog.Logger) error {
	eng := newEngine()
	log.Info("starting tsbridge", "backend", backendName, "root", root)

	rt, err := tsbridge.New(tsbridge.Config{
		Engine:    eng,
		Workers:   workers,
		CachePath: cachePath,
		DebugAddr: debugAddr,
		Log:       log,
	})
	if err != nil {
		return fmt.Errorf("initializing runtime: %w", err)
	}
	defer rt.Close()

	// A standalone CLI run has no host-supplied bindings to register; it
	// still runs Commit so the timer/intrinsic globals of spec §4.7
	// phase 3 are installed and a declaration file can be produced.
	result, err := rt.Commit()
	if err != nil {
		return fmt.Errorf("committing bindings: %w", err)
	}
	if err := writeDeclarations(root, result.Declaration); err != nil {
		return fmt.Errorf("writing declaration files: %w", err)
	}
	if result.CacheHit {
		log.Info("bind cache hit, declarations unchanged since last commit")
	}

	ctx := context.Background()
	if err := rt.CompileProject(ctx, root); err != nil {
		return fmt.Errorf("compiling project: %w", err)
	}

	if _, err := rt.Run(entry); err != nil {
		return fmt.Errorf("running %q: %w", entry, err)
	}
	rt.Drain()
	return nil
}

// writeDeclarations writes internal/lib/builtins.d.ts and
// internal/lib/core.d.ts beneath root, per spec §6.
func writeDeclarations(root, coreDecl string) error {
	dir := filepath.Join(root, "internal", "lib")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "builtins.d.ts"), []byte(builtinsDecl), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "core.d.ts"), []byte(coreDecl), 0o644)
}
