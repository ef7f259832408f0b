package pipeline

import (
	"context"
	"crypto/sha1"
	"fmt"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.uber.org/zap"

	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
	"videotrans/log"
	"videotrans/pkg/util"
)

// synthesis requests are sent in small batches so a stop request takes
// effect between segments instead of after the whole file
const dubBatchSize = 8

// Dub synthesizes one audio clip per subtitle line. Clips are cached by a
// content key so re-runs and retries only synthesize what is missing.
func (p *PipelineTask) Dub(ctx context.Context) error {
	if err := p.checkRunnable(); err != nil {
		return err
	}
	t := p.Task
	if !t.ShouldDub {
		p.reportProgress(65, "跳过配音 Dubbing skipped")
		return nil
	}
	t.SetState(types.StateDubbing)
	p.reportProgress(47, "正在合成语音 Synthesizing speech...")

	if err := p.loadTargetEntries(); err != nil {
		return err
	}
	p.segments = p.buildSegments()

	if t.Config.VoiceClone {
		if err := p.prepareCloneReferences(ctx); err != nil {
			return err
		}
	}

	var pending []*types.DubSegment
	for _, seg := range p.segments {
		if util.FileExists(seg.AudioPath) {
			continue
		}
		pending = append(pending, seg)
	}
	log.GetLogger().Info("dub plan",
		zap.String("taskId", t.Uuid),
		zap.Int("segments", len(p.segments)),
		zap.Int("cached", len(p.segments)-len(pending)))

	done := 0
	for start := 0; start < len(pending); start += dubBatchSize {
		if t.Stopped() {
			return apperrors.ErrCancelled
		}
		end := start + dubBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := p.Collab.Synthesizer.Synthesize(ctx, pending[start:end], t.Config.TargetLanguage); err != nil {
			return apperrors.Wrap(apperrors.CodeSynthesizeFailed, "语音合成失败 Synthesis failed", err)
		}
		done += end - start
		pct := 47 + int(float64(done)/float64(len(pending))*15)
		p.reportProgress(pct, fmt.Sprintf("语音合成 %d/%d Synthesized", done, len(pending)))
	}

	for _, seg := range p.segments {
		dur, err := p.Media.AudioDuration(ctx, seg.AudioPath)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeSynthesizeFailed,
				fmt.Sprintf("合成片段无效 Synthesized clip %d unreadable", seg.Index), err)
		}
		seg.AudioDuration = dur
	}

	p.reportProgress(65, "语音合成完成 Synthesis done")
	return nil
}

// buildSegments maps target subtitle entries to synthesis units, resolving
// the per-line voice role and the cache path for each.
func (p *PipelineTask) buildSegments() []*types.DubSegment {
	cfg := p.Task.Config
	segs := make([]*types.DubSegment, 0, len(p.targetEntries))
	for _, e := range p.targetEntries {
		role := cfg.VoiceRole
		if override, ok := cfg.LineRoles[e.Index]; ok {
			role = override
		}
		seg := &types.DubSegment{
			Index:       e.Index,
			Text:        e.Text,
			Role:        role,
			Rate:        cfg.RateDelta,
			Volume:      cfg.VolumeDelta,
			Pitch:       cfg.PitchDelta,
			SourceStart: e.StartSeconds,
			SourceEnd:   e.EndSeconds,
		}
		seg.AudioPath = p.Task.SegmentAudioPath(segmentCacheKey(cfg.TtsBackend, seg))
		segs = append(segs, seg)
	}
	return segs
}

// segmentCacheKey identifies a synthesized clip by everything that shapes its
// sound. Text length (not the text itself) keeps keys short; index breaks the
// resulting ties between same-length lines.
func segmentCacheKey(backend string, seg *types.DubSegment) string {
	raw := fmt.Sprintf("%s|%.3f|%.3f|%s|%.2f|%.2f|%.2f|%d|%d",
		backend, seg.SourceStart, seg.SourceEnd, seg.Role,
		seg.Rate, seg.Volume, seg.Pitch, len(seg.Text), seg.Index)
	return fmt.Sprintf("%x", sha1.Sum([]byte(raw)))
}

// prepareCloneReferences cuts a reference sample per segment from the voice
// track and pairs it with the closest source line, so the synthesizer can
// clone the original speaker.
func (p *PipelineTask) prepareCloneReferences(ctx context.Context) error {
	t := p.Task
	voiceTrack := t.RawAudioPath()
	if t.SeparationActive {
		voiceTrack = t.VocalPath
	}
	if err := p.loadSourceEntries(); err != nil {
		return err
	}

	for _, seg := range p.segments {
		if t.Stopped() {
			return apperrors.ErrCancelled
		}
		seg.RefText = closestSourceText(p.sourceEntries, seg)
		refPath := t.SegmentAudioPath(fmt.Sprintf("ref_%04d", seg.Index))
		if !util.FileExists(refPath) {
			dur := seg.SourceEnd - seg.SourceStart
			if err := p.Media.CutAudio(ctx, voiceTrack, refPath, seg.SourceStart, dur); err != nil {
				return apperrors.Wrap(apperrors.CodeSynthesizeFailed,
					fmt.Sprintf("参考音频切割失败 Reference cut failed for line %d", seg.Index), err)
			}
		}
		seg.RefAudioPath = refPath
	}
	return nil
}

// closestSourceText picks the source line whose timing overlaps the segment;
// among overlap ties it prefers the textually closest line, which matters
// when recognition and translation disagree about line breaks.
func closestSourceText(source []types.SubtitleEntry, seg *types.DubSegment) string {
	best, bestScore := "", -1.0
	for _, e := range source {
		overlap := minFloat(e.EndSeconds, seg.SourceEnd) - maxFloat(e.StartSeconds, seg.SourceStart)
		if overlap <= 0 {
			continue
		}
		score := overlap
		if e.Text != "" {
			dist := levenshtein.DistanceForStrings([]rune(seg.Text), []rune(e.Text), levenshtein.DefaultOptions)
			score -= float64(dist) * 1e-6
		}
		if score > bestScore {
			best, bestScore = e.Text, score
		}
	}
	return best
}

func (p *PipelineTask) loadTargetEntries() error {
	if len(p.targetEntries) > 0 {
		return nil
	}
	if err := p.loadSourceEntries(); err != nil {
		return err
	}
	if !p.Task.Config.ShouldTranslate() {
		p.targetEntries = p.sourceEntries
		return nil
	}
	entries, err := parseExisting(p.Task.TargetSubtitlePath())
	if err != nil {
		return err
	}
	p.targetEntries = entries
	return nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
