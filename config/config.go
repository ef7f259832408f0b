package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the application-level configuration, loaded once by the host
// process and passed into the pipeline explicitly. Task-level options live in
// task.Config, not here.
type Config struct {
	App       AppConfig       `toml:"app"`
	Server    ServerConfig    `toml:"server"`
	Ffmpeg    FfmpegConfig    `toml:"ffmpeg"`
	Recognize RecognizeConfig `toml:"recognize"`
	Translate TranslateConfig `toml:"translate"`
	Tts       TtsConfig       `toml:"tts"`
	Queue     QueueConfig     `toml:"queue"`
	Workers   WorkersConfig   `toml:"workers"`
}

type AppConfig struct {
	Proxy     string `toml:"proxy"`
	TargetDir string `toml:"target_dir"`
	CacheDir  string `toml:"cache_dir"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type FfmpegConfig struct {
	FfmpegPath  string `toml:"ffmpeg_path"`
	FfprobePath string `toml:"ffprobe_path"`
	// SeparatorPath is the audio source-separation CLI. Separation failure
	// degrades the task instead of failing it, so a missing binary is fine.
	SeparatorPath string `toml:"separator_path"`
}

type RecognizeConfig struct {
	BaseUrl        string `toml:"base_url"`
	ApiKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type TranslateConfig struct {
	BaseUrl        string `toml:"base_url"`
	ApiKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type TtsConfig struct {
	BaseUrl        string `toml:"base_url"`
	ApiKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type QueueConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Concurrency   int    `toml:"concurrency"`
}

// WorkersConfig sets the worker pool size per pipeline stage. Recognition is
// typically CPU/GPU bound while translation and dubbing are bound by provider
// rate limits, so each pool is tuned independently.
type WorkersConfig struct {
	Prepare   int `toml:"prepare"`
	Recognize int `toml:"recognize"`
	Translate int `toml:"translate"`
	Dub       int `toml:"dub"`
	Align     int `toml:"align"`
	Assemble  int `toml:"assemble"`
}

var Conf = defaultConfig()

var resolveConfigPath = func() (string, error) {
	if p := os.Getenv("VIDEOTRANS_CONFIG"); p != "" {
		return p, nil
	}
	return filepath.Join("config", "config.toml"), nil
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{
			TargetDir: "output",
			CacheDir:  "cache",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8888,
		},
		Ffmpeg: FfmpegConfig{
			FfmpegPath:    "ffmpeg",
			FfprobePath:   "ffprobe",
			SeparatorPath: "audio-separator",
		},
		Recognize: RecognizeConfig{
			BaseUrl:        "https://api.openai.com/v1",
			Model:          "whisper-1",
			TimeoutSeconds: 300,
		},
		Translate: TranslateConfig{
			BaseUrl:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 120,
		},
		Tts: TtsConfig{
			TimeoutSeconds: 120,
		},
		Queue: QueueConfig{
			// empty addr keeps the Redis queue disabled
			Concurrency: 3,
		},
		Workers: WorkersConfig{
			Prepare:   2,
			Recognize: 1,
			Translate: 2,
			Dub:       2,
			Align:     2,
			Assemble:  1,
		},
	}
}

// LoadOrCreateConfig loads the TOML config file, creating it with defaults if
// missing. Returns true when a new file was created.
func LoadOrCreateConfig() (bool, error) {
	configPath, err := resolveConfigPath()
	if err != nil {
		return false, err
	}

	if _, err = os.Stat(configPath); os.IsNotExist(err) {
		Conf = defaultConfig()
		if err = SaveConfig(); err != nil {
			return false, fmt.Errorf("create default config: %w", err)
		}
		return true, nil
	}

	if _, err = toml.DecodeFile(configPath, &Conf); err != nil {
		return false, fmt.Errorf("decode config %s: %w", configPath, err)
	}
	return false, nil
}

// SaveConfig writes the current config back to disk, creating parent dirs.
func SaveConfig() error {
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(Conf)
}
