package task

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"videotrans/internal/types"
	apperrors "videotrans/pkg/errors"
)

// Config is the explicit, validated per-task configuration. Every field has a
// defined default; unknown option keys are rejected at construction instead
// of being discovered at use time.
type Config struct {
	SourcePath string
	TargetDir  string // final artifacts; defaulted from app config when empty
	CacheRoot  string // per-task cache dirs are created under here

	SourceLanguage string
	TargetLanguage string // "-"/"No"/"none" means no translation

	AppMode   types.AppMode
	EmbedMode types.EmbedMode

	VoiceRole string         // global voice; empty disables dubbing
	LineRoles map[int]string // per-line overrides, keyed by 1-based line number
	TtsBackend string

	RemoveNoise    bool
	SeparateVocals bool
	OnlyKeepVideo  bool
	VoiceAutoRate  bool
	VideoAutoRate  bool
	VoiceClone     bool

	VolumeDelta float64 // dB, applied after alignment
	PitchDelta  float64
	RateDelta   float64

	CallTimeoutSeconds int
}

// Normalize fills defaults in place.
func (c *Config) Normalize() {
	if c.AppMode == "" {
		c.AppMode = types.AppModeStandard
	}
	if c.EmbedMode == "" {
		c.EmbedMode = types.EmbedNone
	}
	if c.TtsBackend == "" {
		c.TtsBackend = "default"
	}
	if c.TargetDir == "" {
		c.TargetDir = "output"
	}
	if c.CacheRoot == "" {
		c.CacheRoot = "cache"
	}
	if c.CallTimeoutSeconds <= 0 {
		c.CallTimeoutSeconds = 300
	}
}

// Validate checks the config; it is called by NewTask and returns coded errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SourcePath) == "" {
		return apperrors.New(apperrors.CodeInvalidParams, "source path is required")
	}
	if strings.TrimSpace(c.SourceLanguage) == "" {
		return apperrors.New(apperrors.CodeInvalidParams, "source language is required")
	}
	switch c.AppMode {
	case types.AppModeStandard, types.AppModeExtractOnly:
	default:
		return apperrors.New(apperrors.CodeInvalidParams, fmt.Sprintf("unknown app mode %q", c.AppMode))
	}
	switch c.EmbedMode {
	case types.EmbedNone, types.EmbedHardTarget, types.EmbedSoftTarget, types.EmbedHardDual, types.EmbedSoftDual:
	default:
		return apperrors.New(apperrors.CodeInvalidParams, fmt.Sprintf("unknown embed mode %q", c.EmbedMode))
	}
	if c.VoiceClone && c.VoiceRole == "" {
		return apperrors.New(apperrors.CodeInvalidParams, "voice clone requires a voice role")
	}
	for line := range c.LineRoles {
		if line < 1 {
			return apperrors.New(apperrors.CodeInvalidParams, fmt.Sprintf("line role index %d is not 1-based", line))
		}
	}
	return nil
}

// ShouldTranslate reports whether the task has a real translation target.
func (c *Config) ShouldTranslate() bool {
	return !types.IsNoTranslate(c.TargetLanguage) && c.TargetLanguage != c.SourceLanguage
}

// SubtitleLanguage is the language the final subtitle carries.
func (c *Config) SubtitleLanguage() string {
	if c.ShouldTranslate() {
		return c.TargetLanguage
	}
	return c.SourceLanguage
}

// ParseOptions converts a free-form key/value option map (the legacy host
// surface) into a Config, rejecting keys it does not know.
func ParseOptions(opts map[string]string) (Config, error) {
	var cfg Config
	var unknown []string
	for key, val := range opts {
		switch key {
		case "source_path":
			cfg.SourcePath = val
		case "target_dir":
			cfg.TargetDir = val
		case "cache_root":
			cfg.CacheRoot = val
		case "source_language":
			cfg.SourceLanguage = val
		case "target_language":
			cfg.TargetLanguage = val
		case "app_mode":
			cfg.AppMode = types.AppMode(val)
		case "embed_mode":
			cfg.EmbedMode = types.EmbedMode(val)
		case "voice_role":
			cfg.VoiceRole = val
		case "tts_backend":
			cfg.TtsBackend = val
		case "remove_noise":
			cfg.RemoveNoise = parseBool(val)
		case "separate_vocals":
			cfg.SeparateVocals = parseBool(val)
		case "only_keep_video":
			cfg.OnlyKeepVideo = parseBool(val)
		case "voice_auto_rate":
			cfg.VoiceAutoRate = parseBool(val)
		case "video_auto_rate":
			cfg.VideoAutoRate = parseBool(val)
		case "voice_clone":
			cfg.VoiceClone = parseBool(val)
		case "volume_delta":
			cfg.VolumeDelta, _ = strconv.ParseFloat(val, 64)
		case "pitch_delta":
			cfg.PitchDelta, _ = strconv.ParseFloat(val, 64)
		case "rate_delta":
			cfg.RateDelta, _ = strconv.ParseFloat(val, 64)
		default:
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Config{}, apperrors.New(apperrors.CodeInvalidParams,
			fmt.Sprintf("unknown task options: %s", strings.Join(unknown, ", ")))
	}
	cfg.Normalize()
	return cfg, nil
}

// ParseOptionPairs parses "key=value" strings, e.g. repeated -set flags, and
// hands the map to ParseOptions.
func ParseOptionPairs(pairs []string) (Config, error) {
	opts := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return Config{}, apperrors.New(apperrors.CodeInvalidParams,
				fmt.Sprintf("option %q is not key=value", p))
		}
		opts[strings.TrimSpace(key)] = val
	}
	return ParseOptions(opts)
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
