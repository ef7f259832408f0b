package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"videotrans/log"
)

// ErrInterrupted is returned when a cancellation check aborts a running encode.
var ErrInterrupted = errors.New("media: encode interrupted")

// RunWithProgress spawns ffmpeg with the given args plus a `-progress` file
// side-channel, polling the file while the process runs. onProgress receives
// the fraction of totalDuration already written; cancelled is checked at
// every poll and, when it returns true, the encoder process is killed.
func (f *FFmpeg) RunWithProgress(
	ctx context.Context,
	args []string,
	progressPath string,
	totalDuration float64,
	onProgress func(fraction float64),
	cancelled func() bool,
) error {
	_ = os.Remove(progressPath)
	fullArgs := append([]string{"-progress", progressPath, "-nostats"}, args...)

	cmd := exec.CommandContext(ctx, f.FfmpegPath, fullArgs...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	defer os.Remove(progressPath)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				log.GetLogger().Error("ffmpeg encode failed",
					zap.Strings("args", args),
					zap.String("stderr", tail(stderr.String(), 2000)),
					zap.Error(err))
				return fmt.Errorf("ffmpeg encode: %w", err)
			}
			if onProgress != nil {
				onProgress(1.0)
			}
			return nil
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-done
			return ctx.Err()
		case <-ticker.C:
			if cancelled != nil && cancelled() {
				_ = cmd.Process.Kill()
				<-done
				return ErrInterrupted
			}
			if onProgress != nil && totalDuration > 0 {
				if sec, ok := readProgressSeconds(progressPath); ok {
					fraction := sec / totalDuration
					if fraction > 1 {
						fraction = 1
					}
					onProgress(fraction)
				}
			}
		}
	}
}

// readProgressSeconds parses the last out_time_ms / out_time_us entry from an
// ffmpeg progress file.
func readProgressSeconds(path string) (float64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	lines := strings.Split(string(data), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if v, ok := strings.CutPrefix(line, "out_time_us="); ok {
			if us, err := strconv.ParseInt(v, 10, 64); err == nil {
				return float64(us) / 1e6, true
			}
		}
		if v, ok := strings.CutPrefix(line, "out_time_ms="); ok {
			// despite the name ffmpeg writes microseconds here
			if us, err := strconv.ParseInt(v, 10, 64); err == nil {
				return float64(us) / 1e6, true
			}
		}
	}
	return 0, false
}
