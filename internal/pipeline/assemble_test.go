package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videotrans/internal/task"
	"videotrans/internal/types"
)

func TestSelectMuxShapeCoversEveryCombination(t *testing.T) {
	cases := []struct {
		hasDub bool
		embed  types.EmbedMode
		want   muxShape
	}{
		{true, types.EmbedNone, shapeDubPlain},
		{true, types.EmbedHardTarget, shapeDubHardTarget},
		{true, types.EmbedSoftTarget, shapeDubSoftTarget},
		{true, types.EmbedHardDual, shapeDubHardDual},
		{true, types.EmbedSoftDual, shapeDubSoftDual},
		{false, types.EmbedNone, shapeNoOutput},
		{false, types.EmbedHardTarget, shapeSubHardTarget},
		{false, types.EmbedSoftTarget, shapeSubSoftTarget},
		{false, types.EmbedHardDual, shapeSubHardDual},
		{false, types.EmbedSoftDual, shapeSubSoftDual},
	}
	seen := map[muxShape]bool{}
	for _, c := range cases {
		got := selectMuxShape(c.hasDub, c.embed)
		assert.Equal(t, c.want, got, "hasDub=%v embed=%s", c.hasDub, c.embed)
		seen[got] = true
	}
	// nine producing shapes plus the no-output case
	assert.Len(t, seen, 10)
}

func TestBurnsSubtitles(t *testing.T) {
	assert.True(t, shapeDubHardTarget.burnsSubtitles())
	assert.True(t, shapeSubHardDual.burnsSubtitles())
	assert.False(t, shapeDubSoftTarget.burnsSubtitles())
	assert.False(t, shapeDubPlain.burnsSubtitles())
}

func TestBuildMuxArgsDubHardDualBurnsBilingual(t *testing.T) {
	tk := newTestTask(t, func(c *task.Config) {
		c.VoiceRole = "anna"
		c.EmbedMode = types.EmbedHardDual
	})
	p := New(tk, nil, Collaborators{}, nil)

	args, err := p.buildMuxArgs(shapeDubHardDual, "dub.m4a")
	require.NoError(t, err)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, tk.SilentVideoPath())
	assert.Contains(t, joined, "dub.m4a")
	assert.Contains(t, joined, "subtitles=")
	assert.Contains(t, joined, types.BilingualSubtitleFileName)
	assert.Contains(t, joined, "libx264")
	assert.Equal(t, tk.FinalVideoPath(), args[len(args)-1])
}

func TestBuildMuxArgsSoftDualKeepsBothTracks(t *testing.T) {
	tk := newTestTask(t, func(c *task.Config) { c.EmbedMode = types.EmbedSoftDual })
	p := New(tk, nil, Collaborators{}, nil)

	args, err := p.buildMuxArgs(shapeSubSoftDual, "")
	require.NoError(t, err)
	joined := strings.Join(args, " ")

	// original container is the input, streams are copied
	assert.Contains(t, joined, tk.Config.SourcePath)
	assert.Contains(t, joined, "-c:v copy")
	assert.Contains(t, joined, "-c:a copy")
	assert.Contains(t, joined, "language=zh")
	assert.Contains(t, joined, "language=en")
	assert.NotContains(t, joined, "subtitles=")
}

func TestBuildMuxArgsDubPlainCopiesVideo(t *testing.T) {
	tk := newTestTask(t, func(c *task.Config) { c.VoiceRole = "anna" })
	p := New(tk, nil, Collaborators{}, nil)

	args, err := p.buildMuxArgs(shapeDubPlain, "dub.m4a")
	require.NoError(t, err)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-c:v copy")
	assert.Contains(t, joined, "-map 0:v -map 1:a")
}

func TestEscapeFilterPath(t *testing.T) {
	assert.Equal(t, `'/tmp/a.srt'`, escapeFilterPath("/tmp/a.srt"))
	assert.Equal(t, `'C\:/subs/it\'s.srt'`, escapeFilterPath(`C:\subs\it's.srt`))
}

func TestLangTag(t *testing.T) {
	assert.Equal(t, "zh", langTag(" ZH "))
	assert.Equal(t, "und", langTag(""))
}
