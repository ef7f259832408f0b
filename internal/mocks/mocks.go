// Package mocks provides testify mocks for the pipeline's collaborator and
// media contracts.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"videotrans/internal/types"
)

type Recognizer struct {
	mock.Mock
}

func (m *Recognizer) Recognize(ctx context.Context, audioPath string, languageHint string) ([]types.SubtitleEntry, error) {
	args := m.Called(ctx, audioPath, languageHint)
	entries, _ := args.Get(0).([]types.SubtitleEntry)
	return entries, args.Error(1)
}

type Translator struct {
	mock.Mock
}

func (m *Translator) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	args := m.Called(ctx, texts, sourceLang, targetLang)
	out, _ := args.Get(0).([]string)
	return out, args.Error(1)
}

type Synthesizer struct {
	mock.Mock
}

func (m *Synthesizer) Synthesize(ctx context.Context, batch []*types.DubSegment, targetLang string) error {
	args := m.Called(ctx, batch, targetLang)
	return args.Error(0)
}

type Separator struct {
	mock.Mock
}

func (m *Separator) Separate(ctx context.Context, audioPath, outputDir string) (string, string, error) {
	args := m.Called(ctx, audioPath, outputDir)
	return args.String(0), args.String(1), args.Error(2)
}

// Media mocks the ffmpeg surface so stage tests run without an encoder.
type Media struct {
	mock.Mock
}

func (m *Media) Probe(ctx context.Context, path string) (types.VideoInfo, error) {
	args := m.Called(ctx, path)
	info, _ := args.Get(0).(types.VideoInfo)
	return info, args.Error(1)
}

func (m *Media) ExtractAudio(ctx context.Context, input, output string) error {
	return m.Called(ctx, input, output).Error(0)
}

func (m *Media) ExtractSilentVideo(ctx context.Context, input, output string, copyCodec bool) error {
	return m.Called(ctx, input, output, copyCodec).Error(0)
}

func (m *Media) ConvertForRecognition(ctx context.Context, input, output string) error {
	return m.Called(ctx, input, output).Error(0)
}

func (m *Media) Denoise(ctx context.Context, input, output string) error {
	return m.Called(ctx, input, output).Error(0)
}

func (m *Media) GenerateSilence(ctx context.Context, output string, duration float64) error {
	return m.Called(ctx, output, duration).Error(0)
}

func (m *Media) AudioDuration(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

func (m *Media) AdjustTempo(ctx context.Context, input, output string, tempo float64) error {
	return m.Called(ctx, input, output, tempo).Error(0)
}

func (m *Media) ConcatAudio(ctx context.Context, files []string, output, workDir string) error {
	return m.Called(ctx, files, output, workDir).Error(0)
}

func (m *Media) CutAudio(ctx context.Context, input, output string, start, duration float64) error {
	return m.Called(ctx, input, output, start, duration).Error(0)
}

func (m *Media) MixTracks(ctx context.Context, voicePath, instrumentPath, output string, voiceVol, bgVol float64) error {
	return m.Called(ctx, voicePath, instrumentPath, output, voiceVol, bgVol).Error(0)
}

func (m *Media) AdjustVolume(ctx context.Context, input, output string, deltaDb float64) error {
	return m.Called(ctx, input, output, deltaDb).Error(0)
}

func (m *Media) SlowVideo(ctx context.Context, input, output string, factor float64) error {
	return m.Called(ctx, input, output, factor).Error(0)
}

func (m *Media) RunWithProgress(ctx context.Context, args []string, progressPath string, totalDuration float64,
	onProgress func(fraction float64), cancelled func() bool) error {
	callArgs := m.Called(ctx, args, progressPath, totalDuration, onProgress, cancelled)
	return callArgs.Error(0)
}
