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
	apperrors "videotrans/pkg/errors"
	"videotrans/pkg/subtitle"
)

func TestReconcileTranslationExact(t *testing.T) {
	out, err := reconcileTranslation([]string{"a", "b"}, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, out)
}

func TestReconcileTranslationShortIsFatal(t *testing.T) {
	_, err := reconcileTranslation([]string{"a", "b", "c"}, []string{"x", "y"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeTranslateMismatch))
}

func TestReconcileTranslationExtraLinesTrimmed(t *testing.T) {
	out, err := reconcileTranslation([]string{"a", "b"}, []string{"x", "y", "z"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, out)
}

func TestReconcileTranslationBlankPaddedWithSource(t *testing.T) {
	out, err := reconcileTranslation([]string{"a", "b", "c"}, []string{"x", "  ", "z"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "b", "z"}, out)
}

func TestTranslateMirrorsSourceTiming(t *testing.T) {
	tk := newTestTask(t, nil)
	require.NoError(t, subtitle.WriteFile(tk.SourceSubtitlePath(), sampleEntries()))

	tr := &mocks.Translator{}
	tr.On("Translate", mock.Anything, []string{"hello there", "how are you", "goodbye"}, "en", "zh").
		Return([]string{"你好", "你好吗", "再见"}, nil)
	p := New(tk, &mocks.Media{}, Collaborators{Translator: tr}, nil)

	require.NoError(t, p.Recognize(context.Background()))
	require.NoError(t, p.Translate(context.Background()))

	target, err := subtitle.ParseFile(tk.TargetSubtitlePath())
	require.NoError(t, err)
	source := sampleEntries()
	require.Len(t, target, len(source))
	for i := range target {
		assert.Equal(t, source[i].StartSeconds, target[i].StartSeconds)
		assert.Equal(t, source[i].EndSeconds, target[i].EndSeconds)
	}
	assert.Equal(t, "你好", target[0].Text)
	tr.AssertExpectations(t)
}

func TestTranslateShortResultFailsStage(t *testing.T) {
	tk := newTestTask(t, nil)
	require.NoError(t, subtitle.WriteFile(tk.SourceSubtitlePath(), sampleEntries()))

	tr := &mocks.Translator{}
	tr.On("Translate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]string{"只有", "两行"}, nil)
	p := New(tk, &mocks.Media{}, Collaborators{Translator: tr}, nil)

	require.NoError(t, p.Recognize(context.Background()))
	err := p.Translate(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeTranslateMismatch))
}

func TestTranslateWritesBilingualForDualEmbed(t *testing.T) {
	tk := newTestTask(t, func(c *task.Config) { c.EmbedMode = types.EmbedSoftDual })
	require.NoError(t, subtitle.WriteFile(tk.SourceSubtitlePath(), sampleEntries()))

	tr := &mocks.Translator{}
	tr.On("Translate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]string{"你好", "你好吗", "再见"}, nil)
	p := New(tk, &mocks.Media{}, Collaborators{Translator: tr}, nil)

	require.NoError(t, p.Recognize(context.Background()))
	require.NoError(t, p.Translate(context.Background()))
	assert.FileExists(t, tk.BilingualSubtitlePath())
}

func TestTranslateSkippedWhenNoTarget(t *testing.T) {
	tk := newTestTask(t, func(c *task.Config) { c.TargetLanguage = "none" })
	require.NoError(t, subtitle.WriteFile(tk.SourceSubtitlePath(), sampleEntries()))

	tr := &mocks.Translator{}
	p := New(tk, &mocks.Media{}, Collaborators{Translator: tr}, nil)

	require.NoError(t, p.Recognize(context.Background()))
	require.NoError(t, p.Translate(context.Background()))
	tr.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, p.targetEntries, 3)
}
