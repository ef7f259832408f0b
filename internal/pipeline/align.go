package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
	"videotrans/log"
	"videotrans/pkg/subtitle"
	"videotrans/pkg/util"
)

const (
	// timing slack below which no adjustment is worth an encode pass
	alignTolerance = 0.05
	// ceiling for per-segment audio speed-up
	maxAudioTempo = 10.0
	// gentler audio ceiling when the video can absorb the remainder
	sharedAudioTempo = 1.5
)

// alignmentPlan is the pure output of planAlignment: per-segment audio tempo
// factors, the single global video slow-down factor, and the post-alignment
// timeline for every segment.
type alignmentPlan struct {
	Tempos      []float64 // one per segment, 1.0 = untouched
	Starts      []float64
	Ends        []float64
	VideoFactor float64 // setpts factor, 1.0 = untouched
	NewDuration float64
}

// planAlignment computes how to fit each synthesized clip into its window.
// The window of a segment runs from its start to the next segment's start
// (the last one runs to the end of the video). With voiceRate, audio that
// overruns its window is sped up, clamped so speech stays intelligible. With
// videoRate, the whole video is slowed by one global factor so every window
// grows enough to hold its clip. Neither flag moves a segment before its
// original start.
func planAlignment(segs []*types.DubSegment, videoDuration float64, voiceRate, videoRate bool) alignmentPlan {
	n := len(segs)
	plan := alignmentPlan{
		Tempos:      make([]float64, n),
		Starts:      make([]float64, n),
		Ends:        make([]float64, n),
		VideoFactor: 1.0,
		NewDuration: videoDuration,
	}
	if n == 0 {
		return plan
	}

	windows := make([]float64, n)
	for i, seg := range segs {
		var w float64
		if i+1 < n {
			w = segs[i+1].SourceStart - seg.SourceStart
		} else {
			w = videoDuration - seg.SourceStart
		}
		if w <= 0 {
			w = seg.SourceEnd - seg.SourceStart
		}
		if w <= 0 {
			w = seg.AudioDuration
		}
		windows[i] = w
	}

	durations := make([]float64, n)
	for i, seg := range segs {
		plan.Tempos[i] = 1.0
		durations[i] = seg.AudioDuration
		if !voiceRate || seg.AudioDuration <= windows[i]+alignTolerance {
			continue
		}
		tempo := seg.AudioDuration / windows[i]
		ceiling := maxAudioTempo
		if videoRate {
			ceiling = sharedAudioTempo
		}
		if tempo > ceiling {
			tempo = ceiling
		}
		if tempo > 1.0 {
			plan.Tempos[i] = tempo
			durations[i] = seg.AudioDuration / tempo
		}
	}

	scale := 1.0
	if videoRate {
		required := segs[0].SourceStart
		for i := range segs {
			required += maxFloat(windows[i], durations[i])
		}
		if required > videoDuration+alignTolerance {
			scale = required / videoDuration
			plan.VideoFactor = scale
			plan.NewDuration = required
		}
	}

	cursor := 0.0
	for i, seg := range segs {
		start := seg.SourceStart * scale
		if start < cursor {
			start = cursor
		}
		plan.Starts[i] = start
		plan.Ends[i] = start + durations[i]
		cursor = plan.Ends[i]
	}
	return plan
}

// Align applies the alignment plan: per-segment atempo passes, an optional
// global video slow-down, the assembled continuous dubbed track, and the
// subtitle rewrite onto the post-alignment timeline.
func (p *PipelineTask) Align(ctx context.Context) error {
	if err := p.checkRunnable(); err != nil {
		return err
	}
	t := p.Task
	if !t.ShouldDub {
		p.reportProgress(80, "跳过对齐 Alignment skipped")
		return nil
	}
	t.SetState(types.StateAligning)
	p.reportProgress(67, "正在对齐音画 Aligning audio and video...")

	if err := p.ensureSegmentDurations(ctx); err != nil {
		return err
	}

	plan := planAlignment(p.segments, t.Duration(), t.Config.VoiceAutoRate, t.Config.VideoAutoRate)

	for i, seg := range p.segments {
		if t.Stopped() {
			return apperrors.ErrCancelled
		}
		if plan.Tempos[i] <= 1.0+1e-9 {
			continue
		}
		adjusted := strings.TrimSuffix(seg.AudioPath, ".wav") + "_fit.wav"
		if !util.FileExists(adjusted) {
			if err := p.Media.AdjustTempo(ctx, seg.AudioPath, adjusted, plan.Tempos[i]); err != nil {
				return apperrors.Wrap(apperrors.CodeAlignFailed,
					fmt.Sprintf("变速失败 Tempo adjust failed for line %d", seg.Index), err)
			}
		}
		seg.AudioPath = adjusted
		dur, err := p.Media.AudioDuration(ctx, adjusted)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeAlignFailed, "变速片段探测失败 Adjusted clip probe failed", err)
		}
		seg.AudioDuration = dur
	}

	if plan.VideoFactor > 1.0+1e-9 && t.ShouldMux {
		p.reportProgress(72, "正在放慢视频 Slowing video...")
		slowed := t.SilentVideoPath() + ".slow.mp4"
		if err := p.Media.SlowVideo(ctx, t.SilentVideoPath(), slowed, plan.VideoFactor); err != nil {
			return apperrors.Wrap(apperrors.CodeAlignFailed, "视频变速失败 Video slow-down failed", err)
		}
		if err := os.Rename(slowed, t.SilentVideoPath()); err != nil {
			return apperrors.Wrap(apperrors.CodeFileWriteError, "视频替换失败 Video replace failed", err)
		}
		log.GetLogger().Info("video slowed",
			zap.String("taskId", t.Uuid),
			zap.Float64("factor", plan.VideoFactor),
			zap.Float64("newDuration", plan.NewDuration))
	}
	t.SetDuration(plan.NewDuration)

	for i, seg := range p.segments {
		seg.TargetStart = plan.Starts[i]
		seg.TargetEnd = plan.Ends[i]
	}

	if err := p.assembleDubbedTrack(ctx); err != nil {
		return err
	}
	if err := p.rewriteSubtitleTimings(); err != nil {
		return err
	}

	p.reportProgress(80, "对齐完成 Alignment done")
	return nil
}

// assembleDubbedTrack lays the clips onto one continuous track, padding the
// gaps between them (and the head and tail) with generated silence.
func (p *PipelineTask) assembleDubbedTrack(ctx context.Context) error {
	t := p.Task
	if util.FileExists(t.DubbedAudioPath()) {
		return nil
	}

	var files []string
	cursor := 0.0
	for i, seg := range p.segments {
		if gap := seg.TargetStart - cursor; gap > alignTolerance {
			silence := t.SegmentAudioPath(fmt.Sprintf("sil_%04d", i))
			if err := p.Media.GenerateSilence(ctx, silence, gap); err != nil {
				return apperrors.Wrap(apperrors.CodeAlignFailed, "静音生成失败 Silence generation failed", err)
			}
			files = append(files, silence)
			cursor += gap
		}
		files = append(files, seg.AudioPath)
		cursor += seg.AudioDuration
	}
	if tail := t.Duration() - cursor; tail > alignTolerance {
		silence := t.SegmentAudioPath("sil_tail")
		if err := p.Media.GenerateSilence(ctx, silence, tail); err != nil {
			return apperrors.Wrap(apperrors.CodeAlignFailed, "静音生成失败 Silence generation failed", err)
		}
		files = append(files, silence)
	}

	if err := p.Media.ConcatAudio(ctx, files, t.DubbedAudioPath(), t.CacheDir()); err != nil {
		return apperrors.Wrap(apperrors.CodeAlignFailed, "配音轨拼接失败 Dub track concat failed", err)
	}
	return nil
}

// rewriteSubtitleTimings moves the subtitle files onto the post-alignment
// timeline so captions track the dubbed speech, not the original.
func (p *PipelineTask) rewriteSubtitleTimings() error {
	t := p.Task
	if len(p.targetEntries) != len(p.segments) {
		return apperrors.New(apperrors.CodeAlignFailed, "字幕与配音段不匹配 Subtitle/segment count mismatch")
	}
	for i := range p.targetEntries {
		p.targetEntries[i].StartSeconds = p.segments[i].TargetStart
		p.targetEntries[i].EndSeconds = p.segments[i].TargetEnd
	}
	if err := subtitle.WriteFile(t.TargetSubtitlePath(), p.targetEntries); err != nil {
		return apperrors.Wrap(apperrors.CodeFileWriteError, "字幕写入失败 Subtitle write failed", err)
	}

	if t.Config.EmbedMode == types.EmbedHardDual || t.Config.EmbedMode == types.EmbedSoftDual {
		if len(p.sourceEntries) == len(p.targetEntries) {
			for i := range p.sourceEntries {
				p.sourceEntries[i].StartSeconds = p.targetEntries[i].StartSeconds
				p.sourceEntries[i].EndSeconds = p.targetEntries[i].EndSeconds
			}
			if err := subtitle.WriteFile(t.SourceSubtitlePath(), p.sourceEntries); err != nil {
				return apperrors.Wrap(apperrors.CodeFileWriteError, "字幕写入失败 Subtitle write failed", err)
			}
			if err := subtitle.WriteBilingualFile(t.BilingualSubtitlePath(), p.sourceEntries, p.targetEntries); err != nil {
				return apperrors.Wrap(apperrors.CodeFileWriteError, "双语字幕写入失败 Bilingual subtitle write failed", err)
			}
		}
	}
	return nil
}

// ensureSegmentDurations rebuilds the segment list on a resumed run where
// Dub was short-circuited by cached clips, probing each clip's duration.
func (p *PipelineTask) ensureSegmentDurations(ctx context.Context) error {
	if len(p.segments) == 0 {
		if err := p.loadTargetEntries(); err != nil {
			return err
		}
		p.segments = p.buildSegments()
	}
	for _, seg := range p.segments {
		if seg.AudioDuration > 0 {
			continue
		}
		dur, err := p.Media.AudioDuration(ctx, seg.AudioPath)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeAlignFailed,
				fmt.Sprintf("配音片段缺失 Dub clip missing for line %d", seg.Index), err)
		}
		seg.AudioDuration = dur
	}
	return nil
}
