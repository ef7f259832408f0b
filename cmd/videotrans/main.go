// Command videotrans runs a single task from the command line and waits for
// it to finish, printing progress as it goes.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"videotrans/config"
	"videotrans/internal/service"
	"videotrans/internal/task"
	"videotrans/internal/types"
	"videotrans/log"
)

// optionList collects repeated -set key=value flags.
type optionList []string

func (o *optionList) String() string { return strings.Join(*o, ",") }

func (o *optionList) Set(v string) error {
	*o = append(*o, v)
	return nil
}

func main() {
	var (
		input      = flag.String("input", "", "path to the source video (required)")
		targetDir  = flag.String("out", "", "output directory (default from config)")
		sourceLang = flag.String("source-lang", "", "source language (required)")
		targetLang = flag.String("target-lang", "-", "target language, '-' keeps the original")
		mode       = flag.String("mode", "standard", "standard or extract_only")
		embed      = flag.String("embed", "none", "subtitle embedding: none, hard, soft, hard+hard, soft+soft")
		voice      = flag.String("voice", "", "dubbing voice role; empty disables dubbing")
		ttsBackend = flag.String("tts", "", "tts backend name")
		noise      = flag.Bool("denoise", false, "denoise audio before recognition")
		separate   = flag.Bool("separate", false, "separate vocals from background")
		keepVideo  = flag.Bool("only-video", false, "keep only the final video")
		voiceRate  = flag.Bool("voice-rate", false, "speed up overlong dubbed lines")
		videoRate  = flag.Bool("video-rate", false, "slow the video to fit the dub")
		clone      = flag.Bool("clone", false, "clone the original speaker's voice")
		volume     = flag.Float64("volume", 0, "dub volume delta in dB")
	)
	var opts optionList
	flag.Var(&opts, "set", "task option as key=value; repeatable, replaces the typed flags")
	flag.Parse()

	if len(opts) == 0 && (*input == "" || *sourceLang == "") {
		flag.Usage()
		os.Exit(2)
	}

	log.InitLogger()
	defer log.GetLogger().Sync()

	if created, err := config.LoadOrCreateConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	} else if created {
		fmt.Println("default config written, fill it in and rerun")
		return
	}

	svc := service.NewService()
	defer svc.Shutdown()

	cfg := task.Config{
		SourcePath:     *input,
		TargetDir:      *targetDir,
		SourceLanguage: *sourceLang,
		TargetLanguage: *targetLang,
		AppMode:        types.AppMode(*mode),
		EmbedMode:      types.EmbedMode(*embed),
		VoiceRole:      *voice,
		TtsBackend:     *ttsBackend,
		RemoveNoise:    *noise,
		SeparateVocals: *separate,
		OnlyKeepVideo:  *keepVideo,
		VoiceAutoRate:  *voiceRate,
		VideoAutoRate:  *videoRate,
		VoiceClone:     *clone,
		VolumeDelta:    *volume,
	}
	if len(opts) > 0 {
		var err error
		if cfg, err = task.ParseOptionPairs(opts); err != nil {
			fmt.Fprintln(os.Stderr, "bad -set option:", err)
			os.Exit(2)
		}
	}

	t, err := svc.StartTask(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "task rejected:", err)
		os.Exit(1)
	}
	log.GetLogger().Info("task started", zap.String("taskId", t.Uuid))

	lastPct := -1
	for !t.Ended() {
		time.Sleep(time.Second)
		if pct, text := t.Progress(); pct != lastPct {
			fmt.Printf("[%3d%%] %s\n", pct, text)
			lastPct = pct
		}
	}

	if msg := t.ErrorMessage(); msg != "" {
		fmt.Fprintln(os.Stderr, "task failed:", msg)
		os.Exit(1)
	}
	if t.State() == types.StateCancelled {
		fmt.Println("task cancelled")
		return
	}
	fmt.Println("done:", t.TargetDir())
}
