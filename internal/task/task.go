// Package task holds one video's processing run: its validated configuration,
// derived file paths, mutable run state, and the temp workspace lifecycle.
package task

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"videotrans/internal/types"
	"videotrans/pkg/util"
)

// Task is one video's end-to-end processing run. The cache and target
// directories are exclusively owned by this task; no two tasks share them.
type Task struct {
	Uuid   string
	Config Config

	// fixed for the task's life, computed at construction
	ShouldRecognize bool
	ShouldTranslate bool
	ShouldDub       bool
	ShouldMux       bool

	mu            sync.Mutex
	state         types.TaskState
	videoInfo     types.VideoInfo
	percent       int
	statusText    string
	errorMessage  string
	ended         bool
	stopRequested bool

	// set by Prepare when vocal separation succeeds, cleared when it degrades
	SeparationActive bool
	VocalPath        string
	InstrumentPath   string
}

// New builds a task from a validated config. Stage-skip booleans are derived
// here from whether the corresponding output already exists, and stay fixed.
func New(cfg Config) (*Task, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Task{
		Uuid:   uuid.NewString(),
		Config: cfg,
		state:  types.StateCreated,
	}

	t.ShouldRecognize = !util.FileExists(t.SourceSubtitlePath())
	t.ShouldTranslate = cfg.ShouldTranslate() && !util.FileExists(t.TargetSubtitlePath())
	t.ShouldDub = cfg.VoiceRole != "" && cfg.AppMode != types.AppModeExtractOnly &&
		!util.FileExists(t.DubbedAudioPath())
	t.ShouldMux = cfg.AppMode != types.AppModeExtractOnly &&
		(t.ShouldDub || cfg.EmbedMode != types.EmbedNone) &&
		!util.FileExists(t.FinalVideoPath())
	return t, nil
}

// --- derived paths ---
// All paths derive deterministically from uuid + config so "does this file
// already exist" can short-circuit a stage.

func (t *Task) CacheDir() string {
	return filepath.Join(t.Config.CacheRoot, t.Uuid)
}

func (t *Task) TargetDir() string {
	return filepath.Join(t.Config.TargetDir, t.baseName()+"_"+shortId(t.Uuid))
}

func (t *Task) baseName() string {
	base := filepath.Base(t.Config.SourcePath)
	return util.SanitizePathName(strings.TrimSuffix(base, filepath.Ext(base)))
}

func shortId(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (t *Task) SourceSubtitlePath() string {
	return filepath.Join(t.CacheDir(), types.SourceSubtitleFileName)
}

func (t *Task) TargetSubtitlePath() string {
	if !t.Config.ShouldTranslate() {
		return t.SourceSubtitlePath()
	}
	return filepath.Join(t.CacheDir(), types.TargetSubtitleFileName)
}

func (t *Task) BilingualSubtitlePath() string {
	return filepath.Join(t.CacheDir(), types.BilingualSubtitleFileName)
}

func (t *Task) RawAudioPath() string {
	return filepath.Join(t.CacheDir(), types.RawAudioFileName)
}

func (t *Task) RecognitionAudioPath() string {
	return filepath.Join(t.CacheDir(), types.RecognitionAudioFileName)
}

func (t *Task) SilentVideoPath() string {
	return filepath.Join(t.CacheDir(), types.SilentVideoFileName)
}

func (t *Task) DubbedAudioPath() string {
	return filepath.Join(t.CacheDir(), types.DubbedAudioFileName)
}

func (t *Task) MixedAudioPath() string {
	return filepath.Join(t.CacheDir(), types.MixedAudioFileName)
}

func (t *Task) SegmentAudioPath(cacheKey string) string {
	return filepath.Join(t.CacheDir(), "tts", cacheKey+".wav")
}

func (t *Task) EncoderProgressPath() string {
	return filepath.Join(t.CacheDir(), types.EncoderProgressFileName)
}

func (t *Task) FinalVideoPath() string {
	return filepath.Join(t.TargetDir(), fmt.Sprintf("%s_%s.mp4", t.baseName(), t.Config.SubtitleLanguage()))
}

func (t *Task) FinalSubtitlePath(lang string) string {
	return filepath.Join(t.TargetDir(), fmt.Sprintf("%s.srt", lang))
}

func (t *Task) ManifestPath() string {
	return filepath.Join(t.TargetDir(), types.ManifestFileName)
}

// --- run state ---

func (t *Task) State() types.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState moves the state machine forward. Terminal states are absorbing.
func (t *Task) SetState(s types.TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	t.state = s
}

func (t *Task) VideoInfo() types.VideoInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.videoInfo
}

func (t *Task) SetVideoInfo(info types.VideoInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.videoInfo = info
}

// Duration returns the current authoritative total duration. It changes when
// the video is slowed down during alignment.
func (t *Task) Duration() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.videoInfo.DurationSeconds
}

func (t *Task) SetDuration(seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.videoInfo.DurationSeconds = seconds
}

// SetProgress updates percent (monotonically non-decreasing) and status text.
// Progress is frozen once the task has failed or ended.
func (t *Task) SetProgress(percent int, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.errorMessage != "" || t.ended {
		return
	}
	if percent > t.percent {
		if percent > 100 {
			percent = 100
		}
		t.percent = percent
	}
	if text != "" {
		t.statusText = text
	}
}

func (t *Task) Progress() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent, t.statusText
}

// Fail records the first error; later calls are ignored (sticky failure).
func (t *Task) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.errorMessage != "" || t.ended {
		return
	}
	t.errorMessage = err.Error()
	t.state = types.StateFailed
	t.ended = true
}

func (t *Task) ErrorMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorMessage
}

func (t *Task) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorMessage != ""
}

// Finish marks successful completion; percent lands exactly on 100.
func (t *Task) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.errorMessage != "" || t.ended {
		return
	}
	t.percent = 100
	t.state = types.StateFinalized
	t.ended = true
}

// RequestStop asks the task to stop cooperatively. Stage boundaries and long
// loops check Stopped and wind down, leaving the cache dir deletable.
func (t *Task) RequestStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopRequested = true
}

func (t *Task) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopRequested
}

// MarkCancelled moves to the cancelled terminal state. Cancellation is not an
// error and must not populate the error message.
func (t *Task) MarkCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	t.state = types.StateCancelled
	t.ended = true
}

func (t *Task) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}
