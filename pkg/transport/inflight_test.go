package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInFlightRegistry(t *testing.T) {
	t.Run("cancel fires once", func(t *testing.T) {
		r := NewInFlightRegistry()

		var fired int
		r.Register("resp_abc123", func() { fired++ })

		if !r.Cancel("resp_abc123") {
			t.Error("Cancel should report true for a registered ID")
		}
		if fired != 1 {
			t.Errorf("cancel fired %d times, want 1", fired)
		}
		if r.Cancel("resp_abc123") {
			t.Error("second Cancel should report false")
		}
	})

	t.Run("cancel unknown ID", func(t *testing.T) {
		r := NewInFlightRegistry()
		if r.Cancel("resp_nonexistent") {
			t.Error("Cancel should report false for unknown ID")
		}
	})

	t.Run("remove without cancelling", func(t *testing.T) {
		r := NewInFlightRegistry()

		var fired bool
		r.Register("resp_abc123", func() { fired = true })
		r.Remove("resp_abc123")

		if r.Cancel("resp_abc123") {
			t.Error("Cancel should report false after Remove")
		}
		if fired {
			t.Error("Remove must not invoke the cancel function")
		}
		// Removing again is a no-op, not a panic.
		r.Remove("resp_abc123")
	})
}

func TestInFlightRegistryConcurrency(t *testing.T) {
	r := NewInFlightRegistry()
	var cancels atomic.Int64
	const entries = 100

	id := func(i int) string { return fmt.Sprintf("resp_%03d", i) }

	var wg sync.WaitGroup
	for i := 0; i < entries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Register(id(i), func() { cancels.Add(1) })
		}(i)
	}
	wg.Wait()

	for i := 0; i < entries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i < entries/2 {
				r.Cancel(id(i))
			} else {
				r.Remove(id(i))
			}
		}(i)
	}
	wg.Wait()

	if got := cancels.Load(); got != entries/2 {
		t.Errorf("cancellations = %d, want %d", got, entries/2)
	}
}
