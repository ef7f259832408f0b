// Package media wraps the external ffmpeg/ffprobe binaries. Every operation
// spawns a process and blocks the calling worker; long encodes report
// progress through a side-channel file (see progress.go).
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"videotrans/log"
)

// FFmpeg invokes the ffmpeg and ffprobe binaries configured for the app.
type FFmpeg struct {
	FfmpegPath  string
	FfprobePath string
}

func New(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FfmpegPath: ffmpegPath, FfprobePath: ffprobePath}
}

func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, f.FfmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.GetLogger().Error("ffmpeg failed",
			zap.Strings("args", args),
			zap.String("output", tail(string(output), 2000)),
			zap.Error(err))
		return fmt.Errorf("ffmpeg %s: %w", args[len(args)-1], err)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// ExtractAudio pulls the full audio stream into a PCM wav file.
func (f *FFmpeg) ExtractAudio(ctx context.Context, input, output string) error {
	return f.run(ctx, "-y", "-i", input, "-vn", "-ac", "2", "-ar", "44100", "-c:a", "pcm_s16le", output)
}

// ExtractSilentVideo writes the video stream without audio. When copyCodec is
// true the stream is copied untouched, otherwise it is transcoded to H.264.
func (f *FFmpeg) ExtractSilentVideo(ctx context.Context, input, output string, copyCodec bool) error {
	args := []string{"-y", "-i", input, "-an"}
	if copyCodec {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args, "-c:v", "libx264", "-preset", "fast", "-crf", "18")
	}
	return f.run(ctx, append(args, output)...)
}

// ConvertForRecognition resamples audio to the mono 16k wav the recognizer wants.
func (f *FFmpeg) ConvertForRecognition(ctx context.Context, input, output string) error {
	return f.run(ctx, "-y", "-i", input, "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le", output)
}

// Denoise applies an FFT denoise pass.
func (f *FFmpeg) Denoise(ctx context.Context, input, output string) error {
	return f.run(ctx, "-y", "-i", input, "-af", "afftdn=nf=-25", output)
}

// GenerateSilence writes a mono 44100Hz PCM silence clip of the given duration.
func (f *FFmpeg) GenerateSilence(ctx context.Context, output string, duration float64) error {
	return f.run(ctx, "-y", "-f", "lavfi", "-i", "anullsrc=channel_layout=mono:sample_rate=44100",
		"-t", fmt.Sprintf("%.3f", duration), "-ar", "44100", "-ac", "1", "-c:a", "pcm_s16le", output)
}

// AudioDuration returns the duration of an audio file in seconds.
func (f *FFmpeg) AudioDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.FfprobePath,
		"-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe duration %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration parse %q: %w", out.String(), err)
	}
	return dur, nil
}

// AdjustTempo speeds audio up (or down) by factor using atempo. ffmpeg caps a
// single atempo stage to [0.5, 100]; factors are chained when outside [0.5, 2].
func (f *FFmpeg) AdjustTempo(ctx context.Context, input, output string, tempo float64) error {
	if tempo <= 0 {
		return fmt.Errorf("media: tempo must be positive, got %f", tempo)
	}
	var stages []string
	remaining := tempo
	for remaining > 2.0 {
		stages = append(stages, "atempo=2.0")
		remaining /= 2.0
	}
	for remaining < 0.5 {
		stages = append(stages, "atempo=0.5")
		remaining /= 0.5
	}
	stages = append(stages, fmt.Sprintf("atempo=%.4f", remaining))
	return f.run(ctx, "-y", "-i", input, "-filter:a", strings.Join(stages, ","), "-ar", "44100", output)
}

// ConcatAudio concatenates PCM wav clips (all 44100Hz mono) via the concat demuxer.
func (f *FFmpeg) ConcatAudio(ctx context.Context, files []string, output, workDir string) error {
	listFile := filepath.Join(workDir, "audio_list.txt")
	var sb strings.Builder
	for _, file := range files {
		sb.WriteString(fmt.Sprintf("file '%s'\n", strings.ReplaceAll(file, "'", "'\\''")))
	}
	if err := os.WriteFile(listFile, []byte(sb.String()), 0o644); err != nil {
		return err
	}
	defer os.Remove(listFile)
	return f.run(ctx, "-y", "-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", output)
}

// CutAudio extracts [start, start+duration) into its own file, re-encoded so
// the cut is sample accurate.
func (f *FFmpeg) CutAudio(ctx context.Context, input, output string, start, duration float64) error {
	return f.run(ctx, "-y", "-ss", fmt.Sprintf("%.3f", start), "-t", fmt.Sprintf("%.3f", duration),
		"-i", input, "-ac", "1", "-ar", "44100", "-c:a", "pcm_s16le", output)
}

// MixTracks blends the dubbed voice with the instrumental track. The voice
// ducks the background via sidechain compression, then the result is loudness
// normalized so the mix never clips.
func (f *FFmpeg) MixTracks(ctx context.Context, voicePath, instrumentPath, output string, voiceVol, bgVol float64) error {
	filter := fmt.Sprintf(
		"[0:a]volume=%.2f[voice];"+
			"[1:a]volume=%.2f[bgm];"+
			"[bgm][voice]sidechaincompress=threshold=0.08:ratio=6:attack=100:release=800:link=average[ducked][ctl];"+
			"[ducked][ctl]amix=inputs=2:duration=first[mixed];"+
			"[mixed]loudnorm=I=-14:TP=-1.5:LRA=11[out]",
		voiceVol, bgVol*1.5,
	)
	return f.run(ctx,
		"-y", "-i", voicePath, "-i", instrumentPath,
		"-filter_complex", filter, "-map", "[out]",
		"-ac", "2", "-ar", "44100", "-c:a", "aac", "-b:a", "192k", output)
}

// AdjustVolume applies a dB delta as a dedicated pass. Runs after alignment,
// never before, so loudness does not distort the rate computation.
func (f *FFmpeg) AdjustVolume(ctx context.Context, input, output string, deltaDb float64) error {
	return f.run(ctx, "-y", "-i", input, "-af", fmt.Sprintf("volume=%.1fdB", deltaDb), output)
}

// SlowVideo stretches the silent video stream by one global factor (>1 slows
// down). Applied once to the whole stream, never per segment.
func (f *FFmpeg) SlowVideo(ctx context.Context, input, output string, factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("media: video rate factor must be positive, got %f", factor)
	}
	return f.run(ctx, "-y", "-i", input, "-an",
		"-filter:v", fmt.Sprintf("setpts=%.6f*PTS", factor),
		"-c:v", "libx264", "-preset", "fast", "-crf", "18", output)
}
