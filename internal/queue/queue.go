// Package queue provides Redis-backed task submission using Asynq, for
// deployments where submissions must survive a process restart. The in-memory
// scheduler still does the actual stage work; the queue worker just feeds it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"videotrans/config"
	"videotrans/internal/service"
	"videotrans/internal/task"
	"videotrans/internal/types"
	"videotrans/log"
)

const TypeProcessVideo = "video:process"

// ProcessVideoPayload is the durable form of a task submission.
type ProcessVideoPayload struct {
	SourcePath     string            `json:"source_path"`
	TargetDir      string            `json:"target_dir,omitempty"`
	SourceLanguage string            `json:"source_language"`
	TargetLanguage string            `json:"target_language"`
	AppMode        string            `json:"app_mode,omitempty"`
	EmbedMode      string            `json:"embed_mode,omitempty"`
	VoiceRole      string            `json:"voice_role,omitempty"`
	LineRoles      map[int]string    `json:"line_roles,omitempty"`
	TtsBackend     string            `json:"tts_backend,omitempty"`
	RemoveNoise    bool              `json:"remove_noise,omitempty"`
	SeparateVocals bool              `json:"separate_vocals,omitempty"`
	OnlyKeepVideo  bool              `json:"only_keep_video,omitempty"`
	VoiceAutoRate  bool              `json:"voice_auto_rate,omitempty"`
	VideoAutoRate  bool              `json:"video_auto_rate,omitempty"`
	VoiceClone     bool              `json:"voice_clone,omitempty"`
	VolumeDelta    float64           `json:"volume_delta,omitempty"`
	PitchDelta     float64           `json:"pitch_delta,omitempty"`
	RateDelta      float64           `json:"rate_delta,omitempty"`
}

// ToTaskConfig maps the payload onto the validated task configuration.
func (p ProcessVideoPayload) ToTaskConfig() task.Config {
	return task.Config{
		SourcePath:     p.SourcePath,
		TargetDir:      p.TargetDir,
		SourceLanguage: p.SourceLanguage,
		TargetLanguage: p.TargetLanguage,
		AppMode:        types.AppMode(p.AppMode),
		EmbedMode:      types.EmbedMode(p.EmbedMode),
		VoiceRole:      p.VoiceRole,
		LineRoles:      p.LineRoles,
		TtsBackend:     p.TtsBackend,
		RemoveNoise:    p.RemoveNoise,
		SeparateVocals: p.SeparateVocals,
		OnlyKeepVideo:  p.OnlyKeepVideo,
		VoiceAutoRate:  p.VoiceAutoRate,
		VideoAutoRate:  p.VideoAutoRate,
		VoiceClone:     p.VoiceClone,
		VolumeDelta:    p.VolumeDelta,
		PitchDelta:     p.PitchDelta,
		RateDelta:      p.RateDelta,
	}
}

// PayloadFromConfig is the inverse mapping, used by submission surfaces that
// want the durable path.
func PayloadFromConfig(cfg task.Config) ProcessVideoPayload {
	return ProcessVideoPayload{
		SourcePath:     cfg.SourcePath,
		TargetDir:      cfg.TargetDir,
		SourceLanguage: cfg.SourceLanguage,
		TargetLanguage: cfg.TargetLanguage,
		AppMode:        string(cfg.AppMode),
		EmbedMode:      string(cfg.EmbedMode),
		VoiceRole:      cfg.VoiceRole,
		LineRoles:      cfg.LineRoles,
		TtsBackend:     cfg.TtsBackend,
		RemoveNoise:    cfg.RemoveNoise,
		SeparateVocals: cfg.SeparateVocals,
		OnlyKeepVideo:  cfg.OnlyKeepVideo,
		VoiceAutoRate:  cfg.VoiceAutoRate,
		VideoAutoRate:  cfg.VideoAutoRate,
		VoiceClone:     cfg.VoiceClone,
		VolumeDelta:    cfg.VolumeDelta,
		PitchDelta:     cfg.PitchDelta,
		RateDelta:      cfg.RateDelta,
	}
}

// Queue manages enqueueing and the worker server.
type Queue struct {
	client *asynq.Client
	server *asynq.Server
	svc    *service.Service
}

func NewQueue(cfg config.QueueConfig, svc *service.Service) *Queue {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 3,
			"low":     1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			log.GetLogger().Error("queued task failed",
				zap.String("type", t.Type()),
				zap.ByteString("payload", t.Payload()),
				zap.Error(err))
		}),
	})

	return &Queue{
		client: asynq.NewClient(redisOpt),
		server: server,
		svc:    svc,
	}
}

// Enqueue persists a submission. Retries are disabled: a failed task is
// sticky and a resubmission is a new task.
func (q *Queue) Enqueue(payload ProcessVideoPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	info, err := q.client.Enqueue(asynq.NewTask(TypeProcessVideo, data,
		asynq.MaxRetry(0),
		asynq.Timeout(4*time.Hour),
		asynq.Queue("default"),
	))
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	log.GetLogger().Info("task enqueued",
		zap.String("queueId", info.ID), zap.String("source", payload.SourcePath))
	return info.ID, nil
}

// Start runs the worker server until Stop is called.
func (q *Queue) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProcessVideo, q.handleProcessVideo)
	return q.server.Start(mux)
}

func (q *Queue) Stop() {
	q.server.Shutdown()
	_ = q.client.Close()
}

// handleProcessVideo submits the task and blocks until it reaches a terminal
// state, so the queue entry stays visible for the task's whole lifetime.
func (q *Queue) handleProcessVideo(ctx context.Context, at *asynq.Task) error {
	var payload ProcessVideoPayload
	if err := json.Unmarshal(at.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	t, err := q.svc.StartTask(payload.ToTaskConfig())
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = q.svc.StopTask(t.Uuid)
			return ctx.Err()
		case <-ticker.C:
			if !t.Ended() {
				continue
			}
			if msg := t.ErrorMessage(); msg != "" {
				return fmt.Errorf("task %s failed: %s", t.Uuid, msg)
			}
			return nil
		}
	}
}
