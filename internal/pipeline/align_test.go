package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"videotrans/internal/mocks"
	"videotrans/internal/task"
	"videotrans/internal/types"
	"videotrans/pkg/subtitle"
)

func segs(items ...[3]float64) []*types.DubSegment {
	out := make([]*types.DubSegment, len(items))
	for i, it := range items {
		out[i] = &types.DubSegment{
			Index:         i + 1,
			SourceStart:   it[0],
			SourceEnd:     it[1],
			AudioDuration: it[2],
		}
	}
	return out
}

func TestPlanAlignmentEmpty(t *testing.T) {
	plan := planAlignment(nil, 60, true, true)
	assert.Equal(t, 1.0, plan.VideoFactor)
	assert.Equal(t, 60.0, plan.NewDuration)
	assert.Empty(t, plan.Tempos)
}

func TestPlanAlignmentNoFlagsKeepsAudioAndVideo(t *testing.T) {
	s := segs(
		[3]float64{0, 2, 1.5},
		[3]float64{3, 5, 2.0},
	)
	plan := planAlignment(s, 10, false, false)

	assert.Equal(t, []float64{1.0, 1.0}, plan.Tempos)
	assert.Equal(t, 1.0, plan.VideoFactor)
	assert.Equal(t, 10.0, plan.NewDuration)
	assert.InDelta(t, 0.0, plan.Starts[0], 1e-9)
	assert.InDelta(t, 1.5, plan.Ends[0], 1e-9)
	assert.InDelta(t, 3.0, plan.Starts[1], 1e-9)
	assert.InDelta(t, 5.0, plan.Ends[1], 1e-9)
}

func TestPlanAlignmentVoiceRateSpeedsOverrunningClip(t *testing.T) {
	// clip of 4s in a 2s window: tempo 2.0, fits exactly
	s := segs(
		[3]float64{0, 2, 4.0},
		[3]float64{2, 4, 1.0},
	)
	plan := planAlignment(s, 10, true, false)

	assert.InDelta(t, 2.0, plan.Tempos[0], 1e-9)
	assert.Equal(t, 1.0, plan.Tempos[1])
	// each clip ends no later than the next clip's original start
	assert.LessOrEqual(t, plan.Ends[0], s[1].SourceStart+alignTolerance)
	assert.InDelta(t, 2.0, plan.Starts[1], 1e-9)
	// video untouched
	assert.Equal(t, 1.0, plan.VideoFactor)
}

func TestPlanAlignmentVoiceRateClampsExtremeOverrun(t *testing.T) {
	// 50s of speech in a 1s window would need tempo 50; clamp holds at 10
	s := segs([3]float64{0, 1, 50.0})
	plan := planAlignment(s, 1, true, false)

	assert.InDelta(t, maxAudioTempo, plan.Tempos[0], 1e-9)
	assert.InDelta(t, 5.0, plan.Ends[0], 1e-9)
}

func TestPlanAlignmentVoiceRateLeavesFittingClipsAlone(t *testing.T) {
	s := segs([3]float64{0, 3, 2.0})
	plan := planAlignment(s, 10, true, false)
	assert.Equal(t, 1.0, plan.Tempos[0])
	assert.InDelta(t, 2.0, plan.Ends[0], 1e-9)
}

func TestPlanAlignmentVideoRateGrowsTimeline(t *testing.T) {
	// windows: [1,5) and [5,10); the first clip needs 8s in a 4s window
	s := segs(
		[3]float64{1, 4, 8.0},
		[3]float64{5, 9, 3.0},
	)
	plan := planAlignment(s, 10, false, true)

	// audio untouched, video stretched
	assert.Equal(t, []float64{1.0, 1.0}, plan.Tempos)
	assert.Greater(t, plan.VideoFactor, 1.0)

	// new duration is the head gap plus each window grown to hold its clip
	want := 1.0 + maxFloat(4.0, 8.0) + maxFloat(5.0, 3.0)
	assert.InDelta(t, want, plan.NewDuration, alignTolerance)

	// original ordering survives the stretch
	assert.Less(t, plan.Starts[0], plan.Starts[1])
	assert.LessOrEqual(t, plan.Ends[0], plan.Starts[1]+alignTolerance)
}

func TestPlanAlignmentVideoRateNoChangeWhenEverythingFits(t *testing.T) {
	s := segs(
		[3]float64{0, 2, 1.0},
		[3]float64{2, 4, 1.5},
	)
	plan := planAlignment(s, 10, false, true)
	assert.Equal(t, 1.0, plan.VideoFactor)
	assert.Equal(t, 10.0, plan.NewDuration)
}

func TestPlanAlignmentBothFlagsSplitTheWork(t *testing.T) {
	// 6s of speech in a 2s window: audio takes the capped 1.5x,
	// the video absorbs the remaining 4s
	s := segs([3]float64{0, 2, 6.0})
	plan := planAlignment(s, 2, true, true)

	assert.InDelta(t, sharedAudioTempo, plan.Tempos[0], 1e-9)
	postDur := 6.0 / sharedAudioTempo
	assert.InDelta(t, postDur/2.0, plan.VideoFactor, 1e-9)
	assert.InDelta(t, postDur, plan.NewDuration, 1e-9)
	assert.LessOrEqual(t, plan.Ends[0], plan.NewDuration+alignTolerance)
}

func TestPlanAlignmentSequentialCursorPreventsOverlap(t *testing.T) {
	// without any rate flags an overrunning clip pushes its successor back
	s := segs(
		[3]float64{0, 2, 5.0},
		[3]float64{2, 4, 1.0},
	)
	plan := planAlignment(s, 10, false, false)
	assert.InDelta(t, 5.0, plan.Starts[1], 1e-9)
	assert.GreaterOrEqual(t, plan.Starts[1], plan.Ends[0])
}

func TestAlignBuildsContinuousTrackAndRewritesSubtitles(t *testing.T) {
	tk := newAlignTask(t)
	tk.SetDuration(10)

	media := &mocks.Media{}
	media.On("GenerateSilence", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	var concatFiles []string
	media.On("ConcatAudio", mock.Anything, mock.Anything, tk.DubbedAudioPath(), tk.CacheDir()).
		Run(func(args mock.Arguments) { concatFiles = args.Get(1).([]string) }).
		Return(nil)

	p := New(tk, media, Collaborators{}, nil)
	entries, err := subtitle.ParseFile(tk.TargetSubtitlePath())
	require.NoError(t, err)
	p.sourceEntries = entries
	p.targetEntries = entries
	p.segments = p.buildSegments()
	for _, seg := range p.segments {
		seg.AudioDuration = 1.5
	}

	require.NoError(t, p.Align(context.Background()))

	// three clips, two inter-clip gaps, one tail pad
	assert.Len(t, concatFiles, 6)
	media.AssertNotCalled(t, "AdjustTempo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	media.AssertNotCalled(t, "SlowVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	rewritten, err := subtitle.ParseFile(tk.TargetSubtitlePath())
	require.NoError(t, err)
	require.Len(t, rewritten, 3)
	assert.InDelta(t, 3.0, rewritten[1].StartSeconds, 1e-3)
	assert.InDelta(t, 4.5, rewritten[1].EndSeconds, 1e-3)
}

func newAlignTask(t *testing.T) *task.Task {
	t.Helper()
	tk := newTestTask(t, func(c *task.Config) { c.VoiceRole = "anna" })
	require.NoError(t, subtitle.WriteFile(tk.SourceSubtitlePath(), sampleEntries()))
	require.NoError(t, subtitle.WriteFile(tk.TargetSubtitlePath(), sampleEntries()))
	return tk
}

func TestAlignSkippedWithoutDub(t *testing.T) {
	tk := newTestTask(t, nil)
	media := &mocks.Media{}
	p := New(tk, media, Collaborators{}, nil)
	require.NoError(t, p.Align(context.Background()))
	media.AssertNotCalled(t, "ConcatAudio", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
