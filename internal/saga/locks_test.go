package saga_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"noesis-backend/internal/saga"
)

func TestConceptLocks_DisjointSetsDoNotBlock(t *testing.T) {
	locks := saga.NewConceptLocks()

	releaseA := locks.Acquire([]string{"a"})
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB := locks.Acquire([]string{"b"})
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disjoint concept sets must not block each other")
	}
}

func TestConceptLocks_OverlappingSetsSerialize(t *testing.T) {
	locks := saga.NewConceptLocks()
	release := locks.Acquire([]string{"x", "y"})

	acquired := make(chan struct{})
	go func() {
		releaseOther := locks.Acquire([]string{"y", "z"})
		releaseOther()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("overlapping acquisition must wait for release")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
}

func TestConceptLocks_DuplicateIDsCollapse(t *testing.T) {
	locks := saga.NewConceptLocks()

	// Would self-deadlock if duplicates were locked twice.
	release := locks.Acquire([]string{"same", "same", ""})
	release()
}

func TestConceptLocks_ReleaseIsIdempotent(t *testing.T) {
	locks := saga.NewConceptLocks()

	release := locks.Acquire([]string{"a"})
	release()
	assert.NotPanics(t, release)

	// Lock must be reusable afterwards.
	again := locks.Acquire([]string{"a"})
	again()
}

func TestConceptLocks_ReversedOrderCannotDeadlock(t *testing.T) {
	locks := saga.NewConceptLocks()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		ids := []string{"p", "q"}
		if i%2 == 1 {
			ids = []string{"q", "p"}
		}
		wg.Add(1)
		go func(ids []string) {
			defer wg.Done()
			release := locks.Acquire(ids)
			time.Sleep(time.Millisecond)
			release()
		}(ids)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock between reversed acquisition orders")
	}
}
