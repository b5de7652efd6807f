// Package builtins installs the peripheral modules spec.md §1 scopes out
// of the core bridge but an end-to-end worker still needs: fs, path,
// process, and timers. Each is exposed as a plain script object rather
// than a registry-backed class, the same way internal/webapi's modules
// hand-wire their JS surface rather than routing it through reflection.
package builtins

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cryguy/tsbridge/internal/jsengine"
)

// InstallFS builds the fs module object: existsSync, readFileSync,
// writeFileSync, readdirSync — synchronous, since every builtin call
// here runs on the host thread already (spec §5 exempts this peripheral
// surface from the async call-proxy machinery).
func InstallFS(jc jsengine.Ctx) (jsengine.Value, error) {
	obj, err := jc.NewObject()
	if err != nil {
		return nil, err
	}

	existsFn, _ := jc.NewFunction("existsSync", func(info jsengine.CallInfo) (jsengine.Value, error) {
		if info.Len() < 1 {
			return nil, info.Context().ThrowRangeError("existsSync(path) expects 1 argument")
		}
		_, err := os.Stat(info.Arg(0).String())
		return info.Context().NewBool(err == nil), nil
	})

	readFileFn, _ := jc.NewFunction("readFileSync", func(info jsengine.CallInfo) (jsengine.Value, error) {
		jc := info.Context()
		if info.Len() < 1 {
			return nil, jc.ThrowRangeError("readFileSync(path) expects 1 argument")
		}
		data, err := os.ReadFile(info.Arg(0).String())
		if err != nil {
			return nil, jc.ThrowTypeError(fmt.Sprintf("readFileSync: %v", err))
		}
		return jc.NewString(string(data)), nil
	})

	writeFileFn, _ := jc.NewFunction("writeFileSync", func(info jsengine.CallInfo) (jsengine.Value, error) {
		jc := info.Context()
		if info.Len() < 2 {
			return nil, jc.ThrowRangeError("writeFileSync(path, data) expects 2 arguments")
		}
		if err := os.WriteFile(info.Arg(0).String(), []byte(info.Arg(1).String()), 0o644); err != nil {
			return nil, jc.ThrowTypeError(fmt.Sprintf("writeFileSync: %v", err))
		}
		return jc.Undefined(), nil
	})

	readDirFn, _ := jc.NewFunction("readdirSync", func(info jsengine.CallInfo) (jsengine.Value, error) {
		jc := info.Context()
		if info.Len() < 1 {
			return nil, jc.ThrowRangeError("readdirSync(path) expects 1 argument")
		}
		entries, err := os.ReadDir(info.Arg(0).String())
		if err != nil {
			return nil, jc.ThrowTypeError(fmt.Sprintf("readdirSync: %v", err))
		}
		arr, err := jc.NewArray(len(entries))
		if err != nil {
			return nil, err
		}
		for i, e := range entries {
			arr.SetIndex(i, jc.NewString(e.Name()))
		}
		return arr, nil
	})

	obj.Set("existsSync", existsFn)
	obj.Set("readFileSync", readFileFn)
	obj.Set("writeFileSync", writeFileFn)
	obj.Set("readdirSync", readDirFn)
	return obj, nil
}

// InstallPath builds the path module object: join, resolve, basename,
// dirname, extname — thin wrappers over path/filepath, grounded on
// original_source's fs.cpp normalizePath helper (lexically-normalized
// paths) but using Go's own filepath package rather than hand-rolling
// path normalization, since no pack dependency offers path manipulation
// and the standard library is the idiomatic Go answer here.
func InstallPath(jc jsengine.Ctx) (jsengine.Value, error) {
	obj, err := jc.NewObject()
	if err != nil {
		return nil, err
	}

	variadicStrings := func(info jsengine.CallInfo) []string {
		out := make([]string, info.Len())
		for i := range out {
			out[i] = info.Arg(i).String()
		}
		return out
	}

	joinFn, _ := jc.NewFunction("join", func(info jsengine.CallInfo) (jsengine.Value, error) {
		return info.Context().NewString(filepath.Join(variadicStrings(info)...)), nil
	})
	resolveFn, _ := jc.NewFunction("resolve", func(info jsengine.CallInfo) (jsengine.Value, error) {
		jc := info.Context()
		abs, err := filepath.Abs(filepath.Join(variadicStrings(info)...))
		if err != nil {
			return nil, jc.ThrowTypeError(fmt.Sprintf("path.resolve: %v", err))
		}
		return jc.NewString(abs), nil
	})
	basenameFn, _ := jc.NewFunction("basename", func(info jsengine.CallInfo) (jsengine.Value, error) {
		if info.Len() < 1 {
			return nil, info.Context().ThrowRangeError("basename(path) expects 1 argument")
		}
		return info.Context().NewString(filepath.Base(info.Arg(0).String())), nil
	})
	dirnameFn, _ := jc.NewFunction("dirname", func(info jsengine.CallInfo) (jsengine.Value, error) {
		if info.Len() < 1 {
			return nil, info.Context().ThrowRangeError("dirname(path) expects 1 argument")
		}
		return info.Context().NewString(filepath.Dir(info.Arg(0).String())), nil
	})
	extnameFn, _ := jc.NewFunction("extname", func(info jsengine.CallInfo) (jsengine.Value, error) {
		if info.Len() < 1 {
			return nil, info.Context().ThrowRangeError("extname(path) expects 1 argument")
		}
		return info.Context().NewString(filepath.Ext(info.Arg(0).String())), nil
	})

	obj.Set("join", joinFn)
	obj.Set("resolve", resolveFn)
	obj.Set("basename", basenameFn)
	obj.Set("dirname", dirnameFn)
	obj.Set("extname", extnameFn)
	return obj, nil
}
