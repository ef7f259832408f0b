package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
	"videotrans/log"
	"videotrans/pkg/util"
)

// Prepare probes the input, splits it into a silent video and a raw audio
// track, and derives the recognition audio. Vocal separation and denoising
// are attempted when configured, and their failure degrades the task instead
// of ending it.
func (p *PipelineTask) Prepare(ctx context.Context) error {
	if err := p.checkRunnable(); err != nil {
		return err
	}
	t := p.Task
	t.SetState(types.StatePreparing)
	p.reportProgress(2, "正在准备 Preparing...")

	if _, err := os.Stat(t.Config.SourcePath); err != nil {
		return apperrors.Wrap(apperrors.CodeVideoNotFound, "视频文件不存在 Video file not found", err)
	}
	if err := t.EnsureWorkspace(); err != nil {
		return apperrors.Wrap(apperrors.CodeFileWriteError, "工作目录创建失败 Workspace setup failed", err)
	}

	info, err := p.Media.Probe(ctx, t.Config.SourcePath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProbeFailed, "视频探测失败 Video probe failed", err)
	}
	if info.DurationSeconds <= 0 {
		return apperrors.New(apperrors.CodeProbeFailed, "视频时长无效 Invalid video duration")
	}
	t.SetVideoInfo(info)
	log.GetLogger().Info("input probed",
		zap.String("taskId", t.Uuid),
		zap.String("videoCodec", info.VideoCodec),
		zap.Float64("duration", info.DurationSeconds))

	// The silent video is only needed when the result gets re-assembled.
	if t.ShouldMux && !util.FileExists(t.SilentVideoPath()) {
		copyCodec := info.VideoCodec == "h264"
		if err := p.Media.ExtractSilentVideo(ctx, t.Config.SourcePath, t.SilentVideoPath(), copyCodec); err != nil {
			return apperrors.Wrap(apperrors.CodeAudioExtract, "视频轨提取失败 Video track extraction failed", err)
		}
	}
	p.reportProgress(4, "正在提取音频 Extracting audio...")

	if !util.FileExists(t.RawAudioPath()) {
		if err := p.Media.ExtractAudio(ctx, t.Config.SourcePath, t.RawAudioPath()); err != nil {
			return apperrors.Wrap(apperrors.CodeAudioExtract, "音频提取失败 Audio extraction failed", err)
		}
	}

	if t.Stopped() {
		return apperrors.ErrCancelled
	}

	p.separateVocals(ctx)

	if t.ShouldRecognize || t.ShouldDub {
		if err := p.prepareRecognitionAudio(ctx); err != nil {
			return err
		}
	}

	p.reportProgress(10, "准备完成 Preparation done")
	return nil
}

// separateVocals runs the configured separator. Any failure logs a warning
// and leaves SeparationActive false; downstream stages fall back to the raw
// audio track.
func (p *PipelineTask) separateVocals(ctx context.Context) {
	t := p.Task
	if !t.Config.SeparateVocals || p.Collab.Separator == nil {
		return
	}
	vocal := filepath.Join(t.CacheDir(), types.VocalAudioFileName)
	instrument := filepath.Join(t.CacheDir(), types.InstrumentAudioFileName)
	if util.FileExists(vocal) && util.FileExists(instrument) {
		t.SeparationActive, t.VocalPath, t.InstrumentPath = true, vocal, instrument
		return
	}

	p.reportProgress(6, "正在分离人声 Separating vocals...")
	srcVocal, srcInstrument, err := p.Collab.Separator.Separate(ctx, t.RawAudioPath(), t.CacheDir())
	if err != nil {
		log.GetLogger().Warn("vocal separation failed, continuing without it",
			zap.String("taskId", t.Uuid), zap.Error(err))
		return
	}
	if err := moveOrCopy(srcVocal, vocal); err != nil {
		log.GetLogger().Warn("vocal track unusable, continuing without separation",
			zap.String("taskId", t.Uuid), zap.Error(err))
		return
	}
	if err := moveOrCopy(srcInstrument, instrument); err != nil {
		log.GetLogger().Warn("instrument track unusable, continuing without separation",
			zap.String("taskId", t.Uuid), zap.Error(err))
		return
	}
	t.SeparationActive, t.VocalPath, t.InstrumentPath = true, vocal, instrument
}

// prepareRecognitionAudio downsamples the best available voice track to the
// mono 16k wav the recognizer expects, optionally denoised. Denoise failure
// is recoverable: the undenoised audio is used instead.
func (p *PipelineTask) prepareRecognitionAudio(ctx context.Context) error {
	t := p.Task
	if util.FileExists(t.RecognitionAudioPath()) {
		return nil
	}
	input := t.RawAudioPath()
	if t.SeparationActive {
		input = t.VocalPath
	}

	if t.Config.RemoveNoise {
		denoised := filepath.Join(t.CacheDir(), "audio_denoised.wav")
		if err := p.Media.Denoise(ctx, input, denoised); err != nil {
			log.GetLogger().Warn("denoise failed, using original audio",
				zap.String("taskId", t.Uuid), zap.Error(err))
		} else {
			input = denoised
		}
	}

	if err := p.Media.ConvertForRecognition(ctx, input, t.RecognitionAudioPath()); err != nil {
		return apperrors.Wrap(apperrors.CodeAudioExtract, "识别音频转换失败 Recognition audio conversion failed", err)
	}
	return nil
}

func moveOrCopy(src, dst string) error {
	if src == dst {
		return nil
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return util.CopyFile(src, dst)
}
