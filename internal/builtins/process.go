package builtins

import (
	"os"
	"strings"

	"github.com/cryguy/tsbridge/internal/jsengine"
)

// InstallProcess builds the process module object: process.env (a plain
// object snapshotting os.Environ() at install time) and process.cwd(),
// grounded on original_source's process.cpp/process_env.cpp split between
// the process object itself and its env sub-object.
func InstallProcess(jc jsengine.Ctx) (jsengine.Value, error) {
	obj, err := jc.NewObject()
	if err != nil {
		return nil, err
	}

	env, err := jc.NewObject()
	if err != nil {
		return nil, err
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env.Set(k, jc.NewString(v))
	}

	cwdFn, _ := jc.NewFunction("cwd", func(info jsengine.CallInfo) (jsengine.Value, error) {
		jc := info.Context()
		dir, err := os.Getwd()
		if err != nil {
			return nil, jc.ThrowTypeError("process.cwd: " + err.Error())
		}
		return jc.NewString(dir), nil
	})

	obj.Set("env", env)
	obj.Set("cwd", cwdFn)
	return obj, nil
}
