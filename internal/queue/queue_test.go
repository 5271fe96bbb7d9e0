package queue

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestQueueRunsJobsAndReportsErrors(t *testing.T) {
	rqm := NewRequestQueueManager(4, 2)
	defer rqm.Shutdown()

	var ran atomic.Int32
	expected := errors.New("boom")

	for i := 0; i < 10; i++ {
		errc := make(chan error, 1)
		fail := i%2 == 0
		rqm.EnqueueJob(Job{
			Fn: func() error {
				ran.Add(1)
				if fail {
					return expected
				}
				return nil
			},
			Errc: errc,
		})
		err := <-errc
		if fail && !errors.Is(err, expected) {
			t.Fatalf("job %d: expected error, got %v", i, err)
		}
		if !fail && err != nil {
			t.Fatalf("job %d: unexpected error %v", i, err)
		}
	}

	if ran.Load() != 10 {
		t.Fatalf("expected 10 jobs, ran %d", ran.Load())
	}
}

func TestQueueRecoversPanics(t *testing.T) {
	rqm := NewRequestQueueManager(1, 1)
	defer rqm.Shutdown()

	errc := make(chan error, 1)
	rqm.EnqueueJob(Job{Fn: func() error { panic("handler bug") }, Errc: errc})
	if err := <-errc; err == nil {
		t.Fatal("expected panic to surface as an error")
	}

	errc = make(chan error, 1)
	rqm.EnqueueJob(Job{Fn: func() error { return nil }, Errc: errc})
	if err := <-errc; err != nil {
		t.Fatalf("worker did not survive panic: %v", err)
	}
}
