package workerpool

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSubmitRunsJobAndDrainsCompletion(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	done := make(chan uintptr, 1)
	p.Submit(&Job{
		Run: func() (uintptr, error) { return 42, nil },
		AfterComplete: func(result uintptr, err error) {
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			done <- result
		},
	})

	waitForCompletion(t, p)
	select {
	case got := <-done:
		if got != 42 {
			t.Fatalf("expected result 42, got %d", got)
		}
	default:
		t.Fatalf("AfterComplete was never called")
	}
}

func TestRunErrorBecomesAfterCompleteError(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	errCh := make(chan error, 1)
	p.Submit(&Job{
		Run: func() (uintptr, error) { return 0, fmt.Errorf("boom") },
		AfterComplete: func(result uintptr, err error) {
			errCh <- err
		},
	})

	waitForCompletion(t, p)
	select {
	case err := <-errCh:
		if err == nil || err.Error() != "boom" {
			t.Fatalf("expected %q, got %v", "boom", err)
		}
	default:
		t.Fatalf("AfterComplete was never called")
	}
}

// TestDrainDeliversInSubmitOrder exercises spec §5's ordering guarantee:
// within one drain pass, completions are delivered in the order jobs were
// submitted, regardless of which worker finished first.
func TestDrainDeliversInSubmitOrder(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	const n = 50
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		p.Submit(&Job{
			Run: func() (uintptr, error) {
				// Stagger completion so later submissions can race ahead
				// on the worker threads.
				time.Sleep(time.Duration(n-i) * time.Microsecond)
				return uintptr(i), nil
			},
			AfterComplete: func(result uintptr, err error) {
				mu.Lock()
				order = append(order, int(result))
				mu.Unlock()
				wg.Done()
			},
		})
	}

	// Give every worker a chance to finish Run before a single Drain.
	deadline := time.Now().Add(2 * time.Second)
	for {
		p.Drain()
		mu.Lock()
		got := len(order)
		mu.Unlock()
		if got == n || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != n {
		t.Fatalf("expected %d completions, got %d", n, len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected submit-order delivery, got %v at position %d (full: %v)", v, i, order)
		}
	}
}

func TestShutdownStopsWorkers(t *testing.T) {
	p := New(2)
	p.Shutdown()
	// A second Shutdown (e.g. from a deferred caller after an explicit
	// one) must not panic or deadlock.
	p.Shutdown()
}

func waitForCompletion(t *testing.T, p *Pool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.compMu.Lock()
		n := len(p.completed)
		p.compMu.Unlock()
		if n > 0 {
			p.Drain()
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job never completed")
}
