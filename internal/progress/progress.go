// Package progress carries task progress from pipeline stages to whatever
// consumes it (log, HTTP, UI). Stages publish events on a channel; consumers
// never read another component's mutable fields.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"videotrans/internal/task"
	"videotrans/log"
)

// Kind discriminates progress events.
type Kind string

const (
	KindProgress  Kind = "progress"
	KindError     Kind = "error"
	KindSucceeded Kind = "succeeded"
	KindCancelled Kind = "cancelled"
)

// Event is one progress notification for one task.
type Event struct {
	TaskID  string `json:"task_id"`
	Kind    Kind   `json:"kind"`
	Text    string `json:"text,omitempty"`
	Percent int    `json:"percent"`
	Error   string `json:"error,omitempty"`
}

// Reporter consumes progress events.
type Reporter interface {
	Report(ev Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ev Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }

// Bus is the channel-backed reporter the pipeline publishes into. Events fan
// out to all registered consumers on a single goroutine. A task gets exactly
// one terminal notification; later terminal events for it are dropped.
type Bus struct {
	events chan Event

	mu        sync.Mutex
	consumers []Reporter
	terminal  map[string]bool
	closed    bool

	done chan struct{}
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	b := &Bus{
		events:   make(chan Event, buffer),
		terminal: map[string]bool{},
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	defer close(b.done)
	for ev := range b.events {
		b.mu.Lock()
		if ev.Kind != KindProgress {
			if b.terminal[ev.TaskID] {
				b.mu.Unlock()
				continue
			}
			b.terminal[ev.TaskID] = true
		} else if b.terminal[ev.TaskID] {
			// no progress signals after a terminal one (sticky failure)
			b.mu.Unlock()
			continue
		}
		consumers := make([]Reporter, len(b.consumers))
		copy(consumers, b.consumers)
		b.mu.Unlock()

		for _, c := range consumers {
			c.Report(ev)
		}
	}
}

// Attach registers a consumer for all future events.
func (b *Bus) Attach(r Reporter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, r)
}

// Close stops the bus after draining queued events.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.events)
	<-b.done
}

func (b *Bus) publish(ev Event) {
	// the closed check and the send stay in one critical section so Close
	// cannot close the channel between them
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.events <- ev:
	default:
		// a slow consumer must not block a pipeline worker
		log.GetLogger().Warn("progress event dropped", zap.String("taskId", ev.TaskID))
	}
}

// Progress publishes a (taskId, text, percent) event.
func (b *Bus) Progress(taskID, text string, percent int) {
	b.publish(Event{TaskID: taskID, Kind: KindProgress, Text: text, Percent: percent})
}

// Error publishes the task's terminal error event.
func (b *Bus) Error(taskID string, err error) {
	b.publish(Event{TaskID: taskID, Kind: KindError, Error: err.Error()})
}

// Succeeded publishes the task's terminal success event.
func (b *Bus) Succeeded(taskID string) {
	b.publish(Event{TaskID: taskID, Kind: KindSucceeded, Percent: 100})
}

// Cancelled publishes the task's terminal cancellation event.
func (b *Bus) Cancelled(taskID string) {
	b.publish(Event{TaskID: taskID, Kind: KindCancelled})
}

// LogReporter writes events to the structured log.
type LogReporter struct{}

func (LogReporter) Report(ev Event) {
	switch ev.Kind {
	case KindError:
		log.GetLogger().Error("task failed",
			zap.String("taskId", ev.TaskID), zap.String("error", truncateMessage(ev.Error)))
	case KindSucceeded:
		log.GetLogger().Info("task succeeded", zap.String("taskId", ev.TaskID))
	case KindCancelled:
		log.GetLogger().Info("task cancelled", zap.String("taskId", ev.TaskID))
	default:
		log.GetLogger().Debug("task progress",
			zap.String("taskId", ev.TaskID), zap.Int("percent", ev.Percent), zap.String("text", ev.Text))
	}
}

func truncateMessage(msg string) string {
	const maxLen = 300
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen] + "..."
}

// StartSampler launches the per-task periodic reporter: it samples the task's
// percent/status every interval and forwards it to the bus, exiting promptly
// once the task reaches a terminal state.
func StartSampler(t *task.Task, b *Bus, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Second
	}
	quit := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				if t.Ended() {
					return
				}
				pct, text := t.Progress()
				b.Progress(t.Uuid, text, pct)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(quit) }) }
}
