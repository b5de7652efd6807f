// Package workerpool implements the fixed-size worker pool of spec §4.8:
// a pending FIFO drained by worker goroutines, and a completed FIFO
// drained by the host thread so every Job.AfterComplete runs on the same
// thread as binding commit and script execution.
package workerpool

import (
	"runtime"
	"sort"
	"sync"
)

// Job is one asynchronous unit of work. Run executes on a worker
// goroutine and must touch only pure host state (spec §5): its own
// argument buffers, the target function pointer, a result. AfterComplete
// runs later, on whatever goroutine calls Pool.Drain.
type Job struct {
	Run           func() (uintptr, error)
	AfterComplete func(result uintptr, err error)
}

type completion struct {
	seq    uint64
	job    *Job
	result uintptr
	err    error
}

// Pool is a fixed-count worker pool. Workers block on a condition variable
// until a job is enqueued or Shutdown is called.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Job
	stopped bool
	wg      sync.WaitGroup

	nextSeq   uint64
	seqOf     map[*Job]uint64
	completed []completion
	compMu    sync.Mutex
}

// New starts a pool of n workers. n<=0 defaults to runtime.NumCPU().
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
		if n < 1 {
			n = 1
		}
	}
	p := &Pool{seqOf: make(map[*Job]uint64)}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	return p
}

// Submit enqueues job on the pending FIFO. Run is called at most once;
// AfterComplete likewise, and only from Drain.
func (p *Pool) Submit(job *Job) {
	p.mu.Lock()
	seq := p.nextSeq
	p.nextSeq++
	p.seqOf[job] = seq
	p.pending = append(p.pending, job)
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.pending) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.pending) == 0 && p.stopped {
			p.mu.Unlock()
			return
		}
		job := p.pending[0]
		p.pending = p.pending[1:]
		seq := p.seqOf[job]
		delete(p.seqOf, job)
		p.mu.Unlock()

		result, err := job.Run()

		p.compMu.Lock()
		p.completed = append(p.completed, completion{seq: seq, job: job, result: result, err: err})
		p.compMu.Unlock()
	}
}

// Drain delivers every completion collected since the last Drain, in the
// order the jobs were originally submitted (spec §5: ordering is only
// promised within a single drain pass, never across separate drains for
// jobs run by different workers).
func (p *Pool) Drain() {
	p.compMu.Lock()
	batch := p.completed
	p.completed = nil
	p.compMu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })
	for _, c := range batch {
		c.job.AfterComplete(c.result, c.err)
	}
}

// Shutdown stops every worker and waits for them to exit. Workers first
// run every job still in the pending queue, then exit once it is empty.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
