package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureReporter struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureReporter) Report(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureReporter) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(16)
	cap := &captureReporter{}
	bus.Attach(cap)

	bus.Progress("t1", "a", 10)
	bus.Progress("t1", "b", 20)
	bus.Succeeded("t1")
	bus.Close()

	events := cap.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, 10, events[0].Percent)
	assert.Equal(t, 20, events[1].Percent)
	assert.Equal(t, KindSucceeded, events[2].Kind)
	assert.Equal(t, 100, events[2].Percent)
}

func TestBusSingleTerminalNotification(t *testing.T) {
	bus := NewBus(16)
	cap := &captureReporter{}
	bus.Attach(cap)

	bus.Error("t1", errors.New("boom"))
	bus.Succeeded("t1") // must be dropped
	bus.Progress("t1", "late", 99)
	bus.Close()

	events := cap.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, KindError, events[0].Kind)
	assert.Equal(t, "boom", events[0].Error)
}

func TestBusIndependentTasks(t *testing.T) {
	bus := NewBus(16)
	cap := &captureReporter{}
	bus.Attach(cap)

	bus.Succeeded("t1")
	bus.Succeeded("t2")
	bus.Close()

	assert.Len(t, cap.snapshot(), 2)
}

func TestBusCloseIdempotent(t *testing.T) {
	bus := NewBus(1)
	bus.Close()
	bus.Close()
	// publishing after close must not panic
	bus.Progress("t1", "x", 1)
}

func TestBusPublishDuringCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 50; i++ {
		bus := NewBus(4)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				bus.Progress("t1", "x", j)
			}
		}()
		go func() {
			defer wg.Done()
			bus.Close()
		}()
		wg.Wait()
	}
}

func TestBusNonBlockingPublish(t *testing.T) {
	bus := NewBus(1)
	slow := ReporterFunc(func(Event) { time.Sleep(50 * time.Millisecond) })
	bus.Attach(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Progress("t1", "spam", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow consumer")
	}
	bus.Close()
}
