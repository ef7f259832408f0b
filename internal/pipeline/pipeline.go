// Package pipeline drives one task through the processing stages:
// prepare, recognize, translate, dub, align, assemble, finalize.
// Each stage is idempotent against its own output files, checks for a stop
// request at its boundary, and fails the task with a coded error on the
// first unrecoverable problem.
package pipeline

import (
	"context"

	"videotrans/internal/progress"
	"videotrans/internal/task"
	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
)

// Media is the ffmpeg surface the stages consume. pkg/media.FFmpeg satisfies
// it; tests substitute a mock so no encoder binary is needed.
type Media interface {
	Probe(ctx context.Context, path string) (types.VideoInfo, error)
	ExtractAudio(ctx context.Context, input, output string) error
	ExtractSilentVideo(ctx context.Context, input, output string, copyCodec bool) error
	ConvertForRecognition(ctx context.Context, input, output string) error
	Denoise(ctx context.Context, input, output string) error
	GenerateSilence(ctx context.Context, output string, duration float64) error
	AudioDuration(ctx context.Context, path string) (float64, error)
	AdjustTempo(ctx context.Context, input, output string, tempo float64) error
	ConcatAudio(ctx context.Context, files []string, output, workDir string) error
	CutAudio(ctx context.Context, input, output string, start, duration float64) error
	MixTracks(ctx context.Context, voicePath, instrumentPath, output string, voiceVol, bgVol float64) error
	AdjustVolume(ctx context.Context, input, output string, deltaDb float64) error
	SlowVideo(ctx context.Context, input, output string, factor float64) error
	RunWithProgress(ctx context.Context, args []string, progressPath string, totalDuration float64,
		onProgress func(fraction float64), cancelled func() bool) error
}

// Collaborators are the external model/service clients a run depends on.
// Separator may be nil when vocal separation is not configured.
type Collaborators struct {
	Recognizer  types.Recognizer
	Translator  types.Translator
	Synthesizer types.Synthesizer
	Separator   types.Separator
}

// PipelineTask binds one task to the media layer and collaborators for the
// duration of a run. All mutable run state lives on Task.
type PipelineTask struct {
	Task   *task.Task
	Media  Media
	Collab Collaborators
	Bus    *progress.Bus

	// entries parsed from the cache subtitle files, populated as stages run
	sourceEntries []types.SubtitleEntry
	targetEntries []types.SubtitleEntry
	segments      []*types.DubSegment
}

func New(t *task.Task, m Media, c Collaborators, bus *progress.Bus) *PipelineTask {
	return &PipelineTask{Task: t, Media: m, Collab: c, Bus: bus}
}

// checkRunnable gates a stage entry: a stopped task yields the cancellation
// error (not a failure), an already-failed task replays its error.
func (p *PipelineTask) checkRunnable() error {
	if p.Task.Stopped() {
		return apperrors.ErrCancelled
	}
	if p.Task.Failed() {
		return apperrors.New(apperrors.CodeUnknown, p.Task.ErrorMessage())
	}
	return nil
}

func (p *PipelineTask) reportProgress(percent int, text string) {
	p.Task.SetProgress(percent, text)
	if p.Bus != nil {
		pct, status := p.Task.Progress()
		p.Bus.Progress(p.Task.Uuid, status, pct)
	}
}

// IsCancellation reports whether an error is the cooperative-stop signal
// rather than a real failure.
func IsCancellation(err error) bool {
	return apperrors.Is(err, apperrors.CodeCancelled)
}
