// Package separator wraps the audio-separator CLI to split an audio track
// into vocal and instrument components. Callers must treat failure as
// recoverable: the pipeline degrades to the unseparated track.
package separator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"videotrans/log"
)

const modelFileName = "UVR-MDX-NET-Inst_HQ_3.onnx"

type CliSeparator struct {
	BinaryPath string
}

func New(binaryPath string) *CliSeparator {
	if binaryPath == "" {
		binaryPath = "audio-separator"
	}
	return &CliSeparator{BinaryPath: binaryPath}
}

// Separate runs the separation model over audioPath, writing both stems into
// outputDir, and returns the located vocal and instrument files.
func (s *CliSeparator) Separate(ctx context.Context, audioPath, outputDir string) (string, string, error) {
	if _, err := os.Stat(audioPath); os.IsNotExist(err) {
		return "", "", fmt.Errorf("separator: audio file not found: %s", audioPath)
	}

	cmd := exec.CommandContext(ctx, s.BinaryPath,
		"--model_filename", modelFileName,
		"--output_dir", outputDir,
		"--output_format", "wav",
		audioPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.GetLogger().Warn("audio-separator failed",
			zap.String("audio", audioPath),
			zap.String("output", truncate(string(output), 1000)),
			zap.Error(err))
		return "", "", fmt.Errorf("separator: %w", err)
	}

	// Output naming follows <name>_(Vocals)_<model>.wav / <name>_(Instrumental)_<model>.wav,
	// with some model-dependent variation, so fall back to globbing.
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	model := strings.TrimSuffix(modelFileName, ".onnx")

	vocal := filepath.Join(outputDir, fmt.Sprintf("%s_(Vocals)_%s.wav", base, model))
	instrument := filepath.Join(outputDir, fmt.Sprintf("%s_(Instrumental)_%s.wav", base, model))

	if _, err := os.Stat(vocal); os.IsNotExist(err) {
		vocal = firstGlob(filepath.Join(outputDir, "*Vocals*.wav"))
	}
	if _, err := os.Stat(instrument); os.IsNotExist(err) {
		instrument = firstGlob(filepath.Join(outputDir, "*Instrumental*.wav"))
	}
	if vocal == "" {
		return "", "", fmt.Errorf("separator: vocal output not found in %s", outputDir)
	}
	if instrument == "" {
		return "", "", fmt.Errorf("separator: instrument output not found in %s", outputDir)
	}

	log.GetLogger().Info("audio separation completed",
		zap.String("vocal", vocal), zap.String("instrument", instrument))
	return vocal, instrument, nil
}

func firstGlob(pattern string) string {
	matches, _ := filepath.Glob(pattern)
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
