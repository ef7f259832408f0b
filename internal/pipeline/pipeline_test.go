package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"videotrans/internal/mocks"
	"videotrans/internal/task"
	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
	"videotrans/pkg/subtitle"
)

func testConfig(t *testing.T) task.Config {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(src, []byte("fake video bytes"), 0o644))
	return task.Config{
		SourcePath:     src,
		TargetDir:      filepath.Join(dir, "out"),
		CacheRoot:      filepath.Join(dir, "cache"),
		SourceLanguage: "en",
		TargetLanguage: "zh",
	}
}

func newTestTask(t *testing.T, mutate func(*task.Config)) *task.Task {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}
	tk, err := task.New(cfg)
	require.NoError(t, err)
	require.NoError(t, tk.EnsureWorkspace())
	return tk
}

func sampleEntries() []types.SubtitleEntry {
	return []types.SubtitleEntry{
		{Index: 1, StartSeconds: 0, EndSeconds: 2, Text: "hello there"},
		{Index: 2, StartSeconds: 3, EndSeconds: 5, Text: "how are you"},
		{Index: 3, StartSeconds: 6, EndSeconds: 8, Text: "goodbye"},
	}
}

func TestStoppedTaskYieldsCancellation(t *testing.T) {
	tk := newTestTask(t, nil)
	tk.RequestStop()
	p := New(tk, &mocks.Media{}, Collaborators{}, nil)

	err := p.Recognize(context.Background())
	require.Error(t, err)
	assert.True(t, IsCancellation(err))
	assert.Empty(t, tk.ErrorMessage())
}

func TestFailedTaskDoesNotRunFurtherStages(t *testing.T) {
	tk := newTestTask(t, nil)
	tk.Fail(apperrors.New(apperrors.CodeRecognizeFailed, "boom"))
	media := &mocks.Media{}
	p := New(tk, media, Collaborators{}, nil)

	err := p.Translate(context.Background())
	require.Error(t, err)
	assert.False(t, IsCancellation(err))
	media.AssertNotCalled(t, "ExtractAudio", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecognizeReusesExistingSubtitle(t *testing.T) {
	tk := newTestTask(t, nil)
	require.NoError(t, subtitle.WriteFile(tk.SourceSubtitlePath(), sampleEntries()))

	rec := &mocks.Recognizer{}
	p := New(tk, &mocks.Media{}, Collaborators{Recognizer: rec}, nil)

	require.NoError(t, p.Recognize(context.Background()))
	rec.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, p.sourceEntries, 3)
}

func TestRecognizeWritesProviderResult(t *testing.T) {
	tk := newTestTask(t, nil)
	rec := &mocks.Recognizer{}
	rec.On("Recognize", mock.Anything, tk.RecognitionAudioPath(), "en").
		Return(sampleEntries(), nil)
	p := New(tk, &mocks.Media{}, Collaborators{Recognizer: rec}, nil)

	require.NoError(t, p.Recognize(context.Background()))
	entries, err := subtitle.ParseFile(tk.SourceSubtitlePath())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	rec.AssertExpectations(t)
}

func TestRecognizeEmptyResultIsFatal(t *testing.T) {
	tk := newTestTask(t, nil)
	rec := &mocks.Recognizer{}
	rec.On("Recognize", mock.Anything, mock.Anything, mock.Anything).
		Return([]types.SubtitleEntry{}, nil)
	p := New(tk, &mocks.Media{}, Collaborators{Recognizer: rec}, nil)

	err := p.Recognize(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeEmptyRecognition))
}

func TestExtractOnlyFinishesAfterRecognition(t *testing.T) {
	tk := newTestTask(t, func(c *task.Config) {
		c.AppMode = types.AppModeExtractOnly
		c.TargetLanguage = "-"
		c.VoiceRole = "anna" // must not re-enable dubbing in this mode
	})
	require.NoError(t, subtitle.WriteFile(tk.SourceSubtitlePath(), sampleEntries()))
	p := New(tk, &mocks.Media{}, Collaborators{}, nil)

	require.NoError(t, p.Recognize(context.Background()))

	assert.True(t, tk.Ended())
	assert.Equal(t, types.StateFinalized, tk.State())
	pct, _ := tk.Progress()
	assert.Equal(t, 100, pct)
	assert.False(t, tk.ShouldDub)
	assert.False(t, tk.ShouldMux)

	// subtitle landed in the target dir, cache is gone
	assert.FileExists(t, tk.FinalSubtitlePath("en"))
	assert.NoDirExists(t, tk.CacheDir())
}

func TestExtractOnlyWithTranslationFinishesAfterTranslate(t *testing.T) {
	tk := newTestTask(t, func(c *task.Config) { c.AppMode = types.AppModeExtractOnly })
	require.NoError(t, subtitle.WriteFile(tk.SourceSubtitlePath(), sampleEntries()))

	tr := &mocks.Translator{}
	tr.On("Translate", mock.Anything, mock.Anything, "en", "zh").
		Return([]string{"你好", "你好吗", "再见"}, nil)
	p := New(tk, &mocks.Media{}, Collaborators{Translator: tr}, nil)

	require.NoError(t, p.Recognize(context.Background()))
	assert.False(t, tk.Ended())
	require.NoError(t, p.Translate(context.Background()))

	assert.True(t, tk.Ended())
	assert.FileExists(t, tk.FinalSubtitlePath("zh"))
}
