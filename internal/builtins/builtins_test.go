package builtins

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/jsengine/fake"
	"github.com/cryguy/tsbridge/internal/workerpool"
)

func TestFSReadWriteRoundTrip(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	fsObj, err := InstallFS(jc)
	if err != nil {
		t.Fatalf("InstallFS: %v", err)
	}
	fsObjTyped := fsObj.(jsengine.Obj)

	path := filepath.Join(t.TempDir(), "out.txt")
	writeFn, _ := fsObjTyped.Get("writeFileSync")
	if _, err := jc.CallFunction(writeFn, jc.Undefined(), []jsengine.Value{jc.NewString(path), jc.NewString("hello")}); err != nil {
		t.Fatalf("writeFileSync: %v", err)
	}

	readFn, _ := fsObjTyped.Get("readFileSync")
	out, err := jc.CallFunction(readFn, jc.Undefined(), []jsengine.Value{jc.NewString(path)})
	if err != nil {
		t.Fatalf("readFileSync: %v", err)
	}
	if out.String() != "hello" {
		t.Fatalf("expected %q, got %q", "hello", out.String())
	}

	existsFn, _ := fsObjTyped.Get("existsSync")
	exists, _ := jc.CallFunction(existsFn, jc.Undefined(), []jsengine.Value{jc.NewString(path)})
	if !exists.Bool() {
		t.Fatalf("expected existsSync to report true for a just-written file")
	}
}

func TestPathJoinAndBasename(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	pathObj, err := InstallPath(jc)
	if err != nil {
		t.Fatalf("InstallPath: %v", err)
	}
	p := pathObj.(jsengine.Obj)

	joinFn, _ := p.Get("join")
	out, _ := jc.CallFunction(joinFn, jc.Undefined(), []jsengine.Value{jc.NewString("a"), jc.NewString("b"), jc.NewString("c.txt")})
	if out.String() != filepath.Join("a", "b", "c.txt") {
		t.Fatalf("unexpected join result %q", out.String())
	}

	baseFn, _ := p.Get("basename")
	base, _ := jc.CallFunction(baseFn, jc.Undefined(), []jsengine.Value{jc.NewString("/tmp/foo/bar.txt")})
	if base.String() != "bar.txt" {
		t.Fatalf("expected bar.txt, got %q", base.String())
	}
}

func TestProcessCwdAndEnv(t *testing.T) {
	os.Setenv("TSBRIDGE_TEST_VAR", "xyz")
	defer os.Unsetenv("TSBRIDGE_TEST_VAR")

	eng := fake.New()
	jc, _ := eng.NewContext()
	procObj, err := InstallProcess(jc)
	if err != nil {
		t.Fatalf("InstallProcess: %v", err)
	}
	proc := procObj.(jsengine.Obj)

	envVal, err := proc.Get("env")
	if err != nil {
		t.Fatalf("Get(env): %v", err)
	}
	env := envVal.(jsengine.Obj)
	v, _ := env.Get("TSBRIDGE_TEST_VAR")
	if v.String() != "xyz" {
		t.Fatalf("expected xyz, got %q", v.String())
	}

	cwdFn, _ := proc.Get("cwd")
	out, err := jc.CallFunction(cwdFn, jc.Undefined(), nil)
	if err != nil {
		t.Fatalf("cwd(): %v", err)
	}
	wd, _ := os.Getwd()
	if out.String() != wd {
		t.Fatalf("expected %q, got %q", wd, out.String())
	}
}

func TestTimersSetTimeoutFiresOnDrain(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	pool := workerpool.New(1)
	defer pool.Shutdown()
	timers := NewTimers(jc, pool)

	fired := make(chan struct{}, 1)
	fn, _ := jc.NewFunction("cb", func(info jsengine.CallInfo) (jsengine.Value, error) {
		fired <- struct{}{}
		return jc.Undefined(), nil
	})

	timers.SetTimeout(fn, 1)

	deadline := time.After(2 * time.Second)
	for {
		pool.Drain()
		select {
		case <-fired:
			return
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timer never fired")
		}
	}
}

func TestTimersClearTimeoutPreventsFire(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	pool := workerpool.New(1)
	defer pool.Shutdown()
	timers := NewTimers(jc, pool)

	fired := false
	fn, _ := jc.NewFunction("cb", func(info jsengine.CallInfo) (jsengine.Value, error) {
		fired = true
		return jc.Undefined(), nil
	})

	id := timers.SetTimeout(fn, 50)
	timers.ClearTimeout(id)

	time.Sleep(80 * time.Millisecond)
	pool.Drain()
	if fired {
		t.Fatalf("expected cleared timeout to never fire")
	}
}
