// Package scheduler moves tasks through the pipeline's stage queues. Each
// stage has its own FIFO queue and a bounded worker pool, so many tasks
// overlap across stages while any single expensive stage (recognition,
// encoding) stays capped independently.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"videotrans/config"
	"videotrans/internal/pipeline"
	"videotrans/internal/progress"
	"videotrans/log"
)

const defaultQueueSize = 128

var (
	ErrSchedulerStopped = errors.New("scheduler stopped")
	ErrQueueFull        = errors.New("stage queue is full")
	ErrUnknownTask      = errors.New("unknown task")
)

// stageFn runs one pipeline stage to completion.
type stageFn func(p *pipeline.PipelineTask, ctx context.Context) error

type stage struct {
	name    string
	workers int
	queue   chan *pipeline.PipelineTask
	run     stageFn
}

// Scheduler owns the six stage queues and their workers. A task enters at
// prepare and is handed from queue to queue until it finishes, fails, is
// cancelled, or terminates early; the winner of that race retires it.
type Scheduler struct {
	stages []*stage
	bus    *progress.Bus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	mu    sync.Mutex
	tasks map[string]*trackedTask
}

type trackedTask struct {
	p           *pipeline.PipelineTask
	stopSampler func()
}

// New builds and starts a scheduler with per-stage worker counts from cfg.
func New(cfg config.WorkersConfig, bus *progress.Bus) *Scheduler {
	if bus == nil {
		bus = progress.NewBus(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		bus:    bus,
		ctx:    ctx,
		cancel: cancel,
		tasks:  map[string]*trackedTask{},
	}

	s.stages = []*stage{
		{name: "prepare", workers: cfg.Prepare, run: (*pipeline.PipelineTask).Prepare},
		{name: "recognize", workers: cfg.Recognize, run: (*pipeline.PipelineTask).Recognize},
		{name: "translate", workers: cfg.Translate, run: (*pipeline.PipelineTask).Translate},
		{name: "dub", workers: cfg.Dub, run: (*pipeline.PipelineTask).Dub},
		{name: "align", workers: cfg.Align, run: (*pipeline.PipelineTask).Align},
		{name: "assemble", workers: cfg.Assemble, run: (*pipeline.PipelineTask).Assemble},
	}
	for idx, st := range s.stages {
		if st.workers <= 0 {
			st.workers = 1
		}
		st.queue = make(chan *pipeline.PipelineTask, defaultQueueSize)
		for w := 0; w < st.workers; w++ {
			s.wg.Add(1)
			go s.worker(idx, w+1)
		}
	}
	return s
}

// Submit admits a task into the first stage queue and starts its progress
// sampler. It never blocks: a full queue is the caller's problem.
func (s *Scheduler) Submit(p *pipeline.PipelineTask) error {
	if s.closed.Load() {
		return ErrSchedulerStopped
	}

	stop := progress.StartSampler(p.Task, s.bus, time.Second)
	s.mu.Lock()
	s.tasks[p.Task.Uuid] = &trackedTask{p: p, stopSampler: stop}
	s.mu.Unlock()

	select {
	case s.stages[0].queue <- p:
		log.GetLogger().Info("[Scheduler] task submitted",
			zap.String("taskId", p.Task.Uuid),
			zap.String("source", p.Task.Config.SourcePath))
		return nil
	default:
		s.forget(p.Task.Uuid)
		return ErrQueueFull
	}
}

// StopTask requests a cooperative stop; the task winds down at its next
// cancellation checkpoint.
func (s *Scheduler) StopTask(taskID string) error {
	s.mu.Lock()
	tracked, ok := s.tasks[taskID]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownTask
	}
	tracked.p.Task.RequestStop()
	log.GetLogger().Info("[Scheduler] stop requested", zap.String("taskId", taskID))
	return nil
}

// Get returns the live task, if the scheduler still tracks it.
func (s *Scheduler) Get(taskID string) (*pipeline.PipelineTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracked, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	return tracked.p, true
}

// Shutdown stops accepting work, asks every live task to stop, and waits for
// the workers to drain.
func (s *Scheduler) Shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	for _, tracked := range s.tasks {
		tracked.p.Task.RequestStop()
		tracked.stopSampler()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) worker(stageIdx, workerID int) {
	defer s.wg.Done()
	st := s.stages[stageIdx]
	for {
		select {
		case <-s.ctx.Done():
			return
		case p := <-st.queue:
			s.runStage(stageIdx, workerID, p)
		}
	}
}

// runStage executes one stage and routes the task: forward on success, into
// Finalize after the last stage, and out of the scheduler on any terminal
// outcome. The cache directory is torn down on every failure and
// cancellation path.
func (s *Scheduler) runStage(stageIdx, workerID int, p *pipeline.PipelineTask) {
	st := s.stages[stageIdx]
	t := p.Task

	err := st.run(p, s.ctx)
	if err != nil {
		if pipeline.IsCancellation(err) {
			t.MarkCancelled()
			s.bus.Cancelled(t.Uuid)
			log.GetLogger().Info("[Scheduler] task cancelled",
				zap.Int("workerId", workerID),
				zap.String("stage", st.name),
				zap.String("taskId", t.Uuid))
		} else {
			t.Fail(err)
			s.bus.Error(t.Uuid, err)
			log.GetLogger().Error("[Scheduler] stage failed",
				zap.Int("workerId", workerID),
				zap.String("stage", st.name),
				zap.String("taskId", t.Uuid),
				zap.Error(err))
		}
		t.Cleanup()
		s.forget(t.Uuid)
		return
	}

	// extract-only tasks finish inside an early stage
	if t.Ended() {
		s.forget(t.Uuid)
		return
	}

	if stageIdx+1 < len(s.stages) {
		select {
		case s.stages[stageIdx+1].queue <- p:
		case <-s.ctx.Done():
		}
		return
	}

	if err := p.Finalize(s.ctx); err != nil {
		if pipeline.IsCancellation(err) {
			t.MarkCancelled()
			s.bus.Cancelled(t.Uuid)
		} else {
			t.Fail(err)
			s.bus.Error(t.Uuid, err)
		}
		t.Cleanup()
	}
	s.forget(t.Uuid)
}

func (s *Scheduler) forget(taskID string) {
	s.mu.Lock()
	if tracked, ok := s.tasks[taskID]; ok {
		tracked.stopSampler()
		delete(s.tasks, taskID)
	}
	s.mu.Unlock()
}
