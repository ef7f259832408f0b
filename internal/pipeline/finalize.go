package pipeline

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"videotrans/internal/task"
	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
	"videotrans/log"
	"videotrans/pkg/util"
)

// Finalize copies the surviving artifacts into the target directory, writes
// the manifest, tears down the cache, and marks the task done.
func (p *PipelineTask) Finalize(ctx context.Context) error {
	if err := p.checkRunnable(); err != nil {
		return err
	}
	t := p.Task
	if t.Ended() {
		// extract-only tasks finish inside Recognize/Translate
		return nil
	}
	p.reportProgress(96, "正在整理产物 Collecting outputs...")

	entries := []task.ManifestEntry{}
	keepVideo := t.ShouldMux && util.FileExists(t.FinalVideoPath())
	if keepVideo {
		entries = append(entries, task.ManifestEntry{
			Name: t.FinalVideoPath(), Reason: "final video"})
	}

	if !t.Config.OnlyKeepVideo || !keepVideo {
		entries = append(entries, p.exportSubtitles()...)
		entries = append(entries, p.exportAudio()...)
	}

	if err := t.WriteManifest(entries); err != nil {
		return apperrors.Wrap(apperrors.CodeFileWriteError, "清单写入失败 Manifest write failed", err)
	}
	t.Cleanup()
	t.Finish()
	if p.Bus != nil {
		p.Bus.Succeeded(t.Uuid)
	}
	log.GetLogger().Info("task finished",
		zap.String("taskId", t.Uuid), zap.String("targetDir", t.TargetDir()))
	return nil
}

// finishSubtitlesOnly ends an extract-only task: the subtitles are the
// deliverable, so they go straight to the target dir and the run terminates
// at one hundred percent.
func (p *PipelineTask) finishSubtitlesOnly() error {
	t := p.Task
	entries := p.exportSubtitles()
	if err := t.WriteManifest(entries); err != nil {
		return apperrors.Wrap(apperrors.CodeFileWriteError, "清单写入失败 Manifest write failed", err)
	}
	t.Cleanup()
	t.Finish()
	if p.Bus != nil {
		p.Bus.Succeeded(t.Uuid)
	}
	log.GetLogger().Info("subtitle extraction finished",
		zap.String("taskId", t.Uuid), zap.String("targetDir", t.TargetDir()))
	return nil
}

// exportSubtitles copies whichever subtitle files exist in the cache into the
// target dir, named by language.
func (p *PipelineTask) exportSubtitles() []task.ManifestEntry {
	t := p.Task
	var entries []task.ManifestEntry

	copies := []struct {
		src, dst, reason string
	}{
		{t.SourceSubtitlePath(), t.FinalSubtitlePath(t.Config.SourceLanguage), "source subtitle"},
	}
	if t.Config.ShouldTranslate() {
		copies = append(copies, struct{ src, dst, reason string }{
			t.TargetSubtitlePath(), t.FinalSubtitlePath(t.Config.TargetLanguage), "target subtitle"})
		copies = append(copies, struct{ src, dst, reason string }{
			t.BilingualSubtitlePath(), t.FinalSubtitlePath("bilingual"), "bilingual subtitle"})
	}

	for _, c := range copies {
		if !util.FileExists(c.src) {
			continue
		}
		if err := util.CopyFile(c.src, c.dst); err != nil {
			log.GetLogger().Warn("subtitle export failed",
				zap.String("taskId", t.Uuid), zap.String("src", c.src), zap.Error(err))
			continue
		}
		entries = append(entries, task.ManifestEntry{Name: c.dst, Reason: c.reason})
	}
	return entries
}

// exportAudio preserves the dubbed (or mixed) track next to the video so it
// can be reused without a rerun.
func (p *PipelineTask) exportAudio() []task.ManifestEntry {
	t := p.Task
	var entries []task.ManifestEntry
	for _, c := range []struct {
		src, name, reason string
	}{
		{t.DubbedAudioPath(), types.DubbedAudioFileName, "dubbed audio track"},
		{t.MixedAudioPath(), types.MixedAudioFileName, "dubbed audio with background"},
	} {
		if !util.FileExists(c.src) {
			continue
		}
		dst := filepath.Join(t.TargetDir(), c.name)
		if err := util.CopyFile(c.src, dst); err != nil {
			log.GetLogger().Warn("audio export failed",
				zap.String("taskId", t.Uuid), zap.String("src", c.src), zap.Error(err))
			continue
		}
		entries = append(entries, task.ManifestEntry{Name: dst, Reason: c.reason})
	}
	return entries
}
