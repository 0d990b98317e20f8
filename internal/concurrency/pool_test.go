package concurrency

import (
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllJobs(t *testing.T) {
	p := New(3)
	var done int64

	for i := 0; i < 20; i++ {
		p.AddJob(func() {
			atomic.AddInt64(&done, 1)
		})
	}
	p.WaitForCompletion()

	if got := atomic.LoadInt64(&done); got != 20 {
		t.Fatalf("expected 20 jobs to complete, got %d", got)
	}
	if p.Submitted() != 20 {
		t.Fatalf("expected Submitted() == 20, got %d", p.Submitted())
	}
}

func TestPoolSurvivesPanickingJob(t *testing.T) {
	p := New(2)
	var ran int64

	p.AddJob(func() { panic("boom") })
	p.AddJob(func() { atomic.AddInt64(&ran, 1) })
	p.WaitForCompletion()

	if atomic.LoadInt64(&ran) != 1 {
		t.Fatalf("expected the second job to still run, got ran=%d", ran)
	}
}

func TestPoolDefaultsCapacity(t *testing.T) {
	p := New(0)
	if p.Capacity() != 1 {
		t.Fatalf("expected capacity 1 for New(0), got %d", p.Capacity())
	}
}
