package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
	"videotrans/log"
	"videotrans/pkg/media"
	"videotrans/pkg/util"
)

// muxShape is one concrete way of putting the final container together. The
// dubbed/undubbed axis decides where the audio comes from; the embed axis
// decides whether subtitles are burned in, attached as tracks, or absent.
type muxShape int

const (
	shapeNoOutput muxShape = iota // nothing to mux

	// dubbed audio replaces the original track
	shapeDubPlain
	shapeDubHardTarget
	shapeDubSoftTarget
	shapeDubHardDual
	shapeDubSoftDual

	// original audio is kept
	shapeSubHardTarget
	shapeSubSoftTarget
	shapeSubHardDual
	shapeSubSoftDual
)

// selectMuxShape maps the task's effective inputs to the one shape that
// assembles them. It is total: every (hasDub, embed) pair lands on exactly
// one shape.
func selectMuxShape(hasDub bool, embed types.EmbedMode) muxShape {
	if hasDub {
		switch embed {
		case types.EmbedHardTarget:
			return shapeDubHardTarget
		case types.EmbedSoftTarget:
			return shapeDubSoftTarget
		case types.EmbedHardDual:
			return shapeDubHardDual
		case types.EmbedSoftDual:
			return shapeDubSoftDual
		default:
			return shapeDubPlain
		}
	}
	switch embed {
	case types.EmbedHardTarget:
		return shapeSubHardTarget
	case types.EmbedSoftTarget:
		return shapeSubSoftTarget
	case types.EmbedHardDual:
		return shapeSubHardDual
	case types.EmbedSoftDual:
		return shapeSubSoftDual
	default:
		return shapeNoOutput
	}
}

func (s muxShape) burnsSubtitles() bool {
	switch s {
	case shapeDubHardTarget, shapeDubHardDual, shapeSubHardTarget, shapeSubHardDual:
		return true
	}
	return false
}

// Assemble muxes the final video in the target directory. The encode runs
// with a progress side-channel so percent keeps moving during the longest
// stage, and the encoder is killed promptly on a stop request.
func (p *PipelineTask) Assemble(ctx context.Context) error {
	if err := p.checkRunnable(); err != nil {
		return err
	}
	t := p.Task
	if !t.ShouldMux {
		p.reportProgress(95, "跳过合成 Assembly skipped")
		return nil
	}
	t.SetState(types.StateAssembling)
	p.reportProgress(82, "正在合成视频 Assembling video...")

	shape := selectMuxShape(t.ShouldDub, t.Config.EmbedMode)
	if shape == shapeNoOutput {
		p.reportProgress(95, "跳过合成 Assembly skipped")
		return nil
	}

	audioInput := ""
	if t.ShouldDub {
		path, err := p.prepareFinalAudio(ctx)
		if err != nil {
			return err
		}
		audioInput = path
	}

	args, err := p.buildMuxArgs(shape, audioInput)
	if err != nil {
		return err
	}

	err = p.Media.RunWithProgress(ctx, args, t.EncoderProgressPath(), t.Duration(),
		func(fraction float64) {
			p.reportProgress(82+int(fraction*13), "正在合成视频 Assembling video...")
		},
		t.Stopped,
	)
	if err != nil {
		if errors.Is(err, media.ErrInterrupted) {
			return apperrors.ErrCancelled
		}
		return apperrors.Wrap(apperrors.CodeMuxFailed, "视频合成失败 Muxing failed", err)
	}
	if !util.FileExists(t.FinalVideoPath()) {
		return apperrors.New(apperrors.CodeEncoderAborted, "编码器未产出文件 Encoder produced no output")
	}

	log.GetLogger().Info("video assembled",
		zap.String("taskId", t.Uuid), zap.String("output", t.FinalVideoPath()))
	p.reportProgress(95, "视频合成完成 Assembly done")
	return nil
}

// prepareFinalAudio mixes the dubbed voice back over the instrumental bed
// when separation ran, then applies the configured volume delta as its own
// pass after all rate work is done.
func (p *PipelineTask) prepareFinalAudio(ctx context.Context) (string, error) {
	t := p.Task
	audio := t.DubbedAudioPath()

	if t.SeparationActive && util.FileExists(t.InstrumentPath) {
		if !util.FileExists(t.MixedAudioPath()) {
			if err := p.Media.MixTracks(ctx, audio, t.InstrumentPath, t.MixedAudioPath(), 1.0, 0.5); err != nil {
				return "", apperrors.Wrap(apperrors.CodeAudioMixFailed, "背景音混合失败 Background mix failed", err)
			}
		}
		audio = t.MixedAudioPath()
	}

	if t.Config.VolumeDelta != 0 {
		adjusted := audio + ".vol.m4a"
		if !util.FileExists(adjusted) {
			if err := p.Media.AdjustVolume(ctx, audio, adjusted, t.Config.VolumeDelta); err != nil {
				return "", apperrors.Wrap(apperrors.CodeAudioMixFailed, "音量调整失败 Volume adjust failed", err)
			}
		}
		audio = adjusted
	}
	return audio, nil
}

// buildMuxArgs renders one shape into a concrete ffmpeg invocation.
func (p *PipelineTask) buildMuxArgs(shape muxShape, audioInput string) ([]string, error) {
	t := p.Task
	out := t.FinalVideoPath()
	target := t.TargetSubtitlePath()
	source := t.SourceSubtitlePath()
	bilingual := t.BilingualSubtitlePath()
	targetLang := t.Config.SubtitleLanguage()
	sourceLang := t.Config.SourceLanguage

	videoCodec := []string{"-c:v", "copy"}
	if shape.burnsSubtitles() {
		videoCodec = []string{"-c:v", "libx264", "-preset", "fast", "-crf", "23"}
	}

	var args []string
	switch shape {
	case shapeDubPlain:
		args = []string{"-y", "-i", t.SilentVideoPath(), "-i", audioInput,
			"-map", "0:v", "-map", "1:a"}
		args = append(args, videoCodec...)
		args = append(args, "-c:a", "aac", "-b:a", "192k", out)

	case shapeDubHardTarget, shapeDubHardDual:
		burn := target
		if shape == shapeDubHardDual {
			burn = bilingual
		}
		args = []string{"-y", "-i", t.SilentVideoPath(), "-i", audioInput,
			"-map", "0:v", "-map", "1:a",
			"-vf", "subtitles=" + escapeFilterPath(burn)}
		args = append(args, videoCodec...)
		args = append(args, "-c:a", "aac", "-b:a", "192k", out)

	case shapeDubSoftTarget:
		args = []string{"-y", "-i", t.SilentVideoPath(), "-i", audioInput, "-i", target,
			"-map", "0:v", "-map", "1:a", "-map", "2:s"}
		args = append(args, videoCodec...)
		args = append(args,
			"-c:a", "aac", "-b:a", "192k", "-c:s", "mov_text",
			"-metadata:s:s:0", "language="+langTag(targetLang), out)

	case shapeDubSoftDual:
		args = []string{"-y", "-i", t.SilentVideoPath(), "-i", audioInput, "-i", target, "-i", source,
			"-map", "0:v", "-map", "1:a", "-map", "2:s", "-map", "3:s"}
		args = append(args, videoCodec...)
		args = append(args,
			"-c:a", "aac", "-b:a", "192k", "-c:s", "mov_text",
			"-metadata:s:s:0", "language="+langTag(targetLang),
			"-metadata:s:s:1", "language="+langTag(sourceLang), out)

	case shapeSubHardTarget, shapeSubHardDual:
		burn := target
		if shape == shapeSubHardDual {
			burn = bilingual
		}
		args = []string{"-y", "-i", t.Config.SourcePath,
			"-vf", "subtitles=" + escapeFilterPath(burn)}
		args = append(args, videoCodec...)
		args = append(args, "-c:a", "copy", out)

	case shapeSubSoftTarget:
		args = []string{"-y", "-i", t.Config.SourcePath, "-i", target,
			"-map", "0:v", "-map", "0:a", "-map", "1:s",
			"-c:v", "copy", "-c:a", "copy", "-c:s", "mov_text",
			"-metadata:s:s:0", "language=" + langTag(targetLang), out}

	case shapeSubSoftDual:
		args = []string{"-y", "-i", t.Config.SourcePath, "-i", target, "-i", source,
			"-map", "0:v", "-map", "0:a", "-map", "1:s", "-map", "2:s",
			"-c:v", "copy", "-c:a", "copy", "-c:s", "mov_text",
			"-metadata:s:s:0", "language=" + langTag(targetLang),
			"-metadata:s:s:1", "language=" + langTag(sourceLang), out}

	default:
		return nil, apperrors.New(apperrors.CodeMuxFailed, fmt.Sprintf("无法合成 Unsupported mux shape %d", shape))
	}
	return args, nil
}

// escapeFilterPath quotes a path for use inside an ffmpeg filter expression.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "\\'")
	return "'" + path + "'"
}

// langTag lowercases a language value into a container-friendly tag.
func langTag(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "und"
	}
	return lang
}
