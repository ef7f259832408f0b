// Package service wires the application together: it builds the provider
// clients from app config, owns the scheduler and progress bus, and exposes
// the operations the HTTP handlers and queue workers call.
package service

import (
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"videotrans/config"
	"videotrans/internal/pipeline"
	"videotrans/internal/progress"
	"videotrans/internal/scheduler"
	"videotrans/internal/storage"
	"videotrans/internal/task"
	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
	"videotrans/log"
	"videotrans/pkg/media"
	"videotrans/pkg/recognizer"
	"videotrans/pkg/separator"
	"videotrans/pkg/translator"
	"videotrans/pkg/ttsclient"
)

type Service struct {
	media  pipeline.Media
	collab pipeline.Collaborators
	bus    *progress.Bus
	sched  *scheduler.Scheduler
}

// NewService builds the full production wiring from the loaded config.
func NewService() *Service {
	cfg := config.Conf

	collab := pipeline.Collaborators{
		Recognizer: recognizer.NewWhisperClient(
			cfg.Recognize.BaseUrl, cfg.Recognize.ApiKey, cfg.Recognize.Model,
			cfg.App.Proxy, cfg.Recognize.TimeoutSeconds),
		Translator: translator.NewOpenAiClient(
			cfg.Translate.BaseUrl, cfg.Translate.ApiKey, cfg.Translate.Model,
			cfg.App.Proxy, cfg.Translate.TimeoutSeconds),
		Synthesizer: ttsclient.NewClient(
			cfg.Tts.BaseUrl, cfg.Tts.ApiKey, cfg.App.Proxy, cfg.Tts.TimeoutSeconds),
	}
	if cfg.Ffmpeg.SeparatorPath != "" {
		collab.Separator = separator.New(cfg.Ffmpeg.SeparatorPath)
	}

	bus := progress.NewBus(256)
	bus.Attach(progress.LogReporter{})
	bus.Attach(storage.Reporter{})

	return &Service{
		media:  media.New(cfg.Ffmpeg.FfmpegPath, cfg.Ffmpeg.FfprobePath),
		collab: collab,
		bus:    bus,
		sched:  scheduler.New(cfg.Workers, bus),
	}
}

// NewServiceWith lets tests assemble a service from fakes.
func NewServiceWith(m pipeline.Media, collab pipeline.Collaborators, workers config.WorkersConfig) *Service {
	bus := progress.NewBus(256)
	bus.Attach(storage.Reporter{})
	return &Service{
		media:  m,
		collab: collab,
		bus:    bus,
		sched:  scheduler.New(workers, bus),
	}
}

func (s *Service) Bus() *progress.Bus { return s.bus }

// StartTask validates the config, persists the initial record, and admits
// the task into the scheduler. The returned task is already running.
func (s *Service) StartTask(cfg task.Config) (*task.Task, error) {
	if cfg.TargetDir == "" {
		cfg.TargetDir = config.Conf.App.TargetDir
	}
	if cfg.CacheRoot == "" {
		cfg.CacheRoot = config.Conf.App.CacheDir
	}
	t, err := task.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := storage.SaveRecord(&storage.TaskRecord{
		TaskId:     t.Uuid,
		SourcePath: cfg.SourcePath,
		TargetDir:  t.TargetDir(),
		State:      types.StateCreated,
	}); err != nil {
		log.GetLogger().Warn("task record save failed", zap.String("taskId", t.Uuid), zap.Error(err))
	}

	p := pipeline.New(t, s.media, s.collab, s.bus)
	if err := s.sched.Submit(p); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "任务提交失败 Task submit failed", err)
	}
	return t, nil
}

// TaskStatus answers from the live task when scheduled, falling back to the
// persisted record for retired tasks.
func (s *Service) TaskStatus(taskID string) (*storage.TaskRecord, error) {
	if p, ok := s.sched.Get(taskID); ok {
		t := p.Task
		pct, text := t.Progress()
		return &storage.TaskRecord{
			TaskId:       t.Uuid,
			SourcePath:   t.Config.SourcePath,
			TargetDir:    t.TargetDir(),
			State:        t.State(),
			Percent:      pct,
			StatusText:   text,
			ErrorMessage: t.ErrorMessage(),
		}, nil
	}
	rec, err := storage.GetRecord(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.CodeDBError, "数据库错误 Database error", err)
	}
	return rec, nil
}

// StopTask requests a cooperative stop of a running task.
func (s *Service) StopTask(taskID string) error {
	if err := s.sched.StopTask(taskID); err != nil {
		if errors.Is(err, scheduler.ErrUnknownTask) {
			return apperrors.ErrNotFound
		}
		return err
	}
	return nil
}

// History lists the most recent persisted tasks.
func (s *Service) History(limit int) ([]storage.TaskRecord, error) {
	recs, err := storage.ListRecords(limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDBError, "数据库错误 Database error", err)
	}
	return recs, nil
}

// Shutdown drains the scheduler and closes the progress bus.
func (s *Service) Shutdown() {
	s.sched.Shutdown()
	s.bus.Close()
}
