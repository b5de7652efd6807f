package builtins

import (
	"sync"
	"time"

	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/workerpool"
)

// Timers implements internal/commit's Timers interface: setTimeout/
// setInterval schedule a workerpool.Job whose Run is a no-op (the actual
// wait happens in the time.AfterFunc below, not on a worker goroutine) so
// that the script callback itself only ever runs from Pool.Drain on the
// host thread, the same single-thread discipline every other async call
// in this bridge follows. Grounded on original_source's TimeoutModule.cpp
// (id-keyed timers, clearTimeout/clearInterval cancel by id) and
// jobpump.go/eventloop.go's host-thread drain pattern.
type Timers struct {
	jc   jsengine.Ctx
	pool *workerpool.Pool

	mu        sync.Mutex
	nextID    float64
	timeouts  map[float64]*time.Timer
	intervals map[float64]*time.Timer
}

// NewTimers returns a Timers bound to jc (whose CallFunction is only ever
// invoked from a Pool.Drain call on the host thread) and pool.
func NewTimers(jc jsengine.Ctx, pool *workerpool.Pool) *Timers {
	return &Timers{
		jc:        jc,
		pool:      pool,
		timeouts:  make(map[float64]*time.Timer),
		intervals: make(map[float64]*time.Timer),
	}
}

func (t *Timers) allocID() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	return t.nextID
}

// SetTimeout schedules fn to run once after ms milliseconds.
func (t *Timers) SetTimeout(fn jsengine.Value, ms float64) float64 {
	id := t.allocID()
	timer := time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		t.mu.Lock()
		_, armed := t.timeouts[id]
		delete(t.timeouts, id)
		t.mu.Unlock()
		if !armed {
			return
		}
		t.submit(fn)
	})
	t.mu.Lock()
	t.timeouts[id] = timer
	t.mu.Unlock()
	return id
}

// SetInterval schedules fn to run every ms milliseconds until cleared.
func (t *Timers) SetInterval(fn jsengine.Value, ms float64) float64 {
	id := t.allocID()
	var arm func()
	arm = func() {
		timer := time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
			t.mu.Lock()
			_, armed := t.intervals[id]
			t.mu.Unlock()
			if !armed {
				return
			}
			t.submit(fn)
			arm()
		})
		t.mu.Lock()
		t.intervals[id] = timer
		t.mu.Unlock()
	}
	arm()
	return id
}

// ClearTimeout cancels a pending setTimeout by id. Clearing an unknown or
// already-fired id is a no-op.
func (t *Timers) ClearTimeout(id float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timeouts[id]; ok {
		timer.Stop()
		delete(t.timeouts, id)
	}
}

// ClearInterval cancels a running setInterval by id.
func (t *Timers) ClearInterval(id float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.intervals[id]; ok {
		timer.Stop()
		delete(t.intervals, id)
	}
}

func (t *Timers) submit(fn jsengine.Value) {
	t.pool.Submit(&workerpool.Job{
		Run: func() (uintptr, error) { return 0, nil },
		AfterComplete: func(uintptr, error) {
			t.jc.CallFunction(fn, t.jc.Undefined(), nil)
		},
	})
}
