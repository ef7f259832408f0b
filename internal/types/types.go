// Package types holds the shared data model of the processing pipeline and
// the contracts of the external collaborators it drives.
package types

import "context"

// AppMode governs which pipeline stages are no-ops for a task.
type AppMode string

const (
	// AppModeStandard runs the full dubbing pipeline.
	AppModeStandard AppMode = "standard"
	// AppModeExtractOnly extracts (and optionally translates) subtitles,
	// then terminates without dubbing or muxing.
	AppModeExtractOnly AppMode = "extract_only"
)

// EmbedMode selects how subtitles are attached to the final video.
type EmbedMode string

const (
	EmbedNone       EmbedMode = "none"
	EmbedHardTarget EmbedMode = "hard"      // target language burned into pixels
	EmbedSoftTarget EmbedMode = "soft"      // target language as a selectable track
	EmbedHardDual   EmbedMode = "hard+hard" // bilingual burned in
	EmbedSoftDual   EmbedMode = "soft+soft" // source + target selectable tracks
)

// IsNoTranslate reports whether a target-language value means "no translation".
func IsNoTranslate(target string) bool {
	switch target {
	case "-", "No", "no", "none":
		return true
	}
	return false
}

// TaskState is one phase of the pipeline state machine.
type TaskState string

const (
	StateCreated     TaskState = "created"
	StatePreparing   TaskState = "preparing"
	StateRecognizing TaskState = "recognizing"
	StateTranslating TaskState = "translating"
	StateDubbing     TaskState = "dubbing"
	StateAligning    TaskState = "aligning"
	StateAssembling  TaskState = "assembling"
	StateFinalized   TaskState = "finalized"
	StateFailed      TaskState = "failed"
	StateCancelled   TaskState = "cancelled"
)

// VideoInfo is captured once at task creation by probing the input.
// DurationSeconds is mutated when the video is slowed down during alignment;
// downstream computations must read the current value, never the original.
type VideoInfo struct {
	Fps             float64
	VideoCodec      string
	AudioCodec      string
	Width           int
	Height          int
	DurationSeconds float64
	ColorFormat     string
}

// SubtitleEntry is one subtitle line. Index is 1-based and contiguous within
// one file; entries with EndSeconds <= StartSeconds are dropped at parse time.
type SubtitleEntry struct {
	Index        int
	StartSeconds float64
	EndSeconds   float64
	Text         string
}

// DubSegment is one subtitle line prepared for speech synthesis, and after
// alignment carries its actual post-adjustment timing.
type DubSegment struct {
	Index   int
	Text    string
	RefText string // matched reference text for voice cloning
	Role    string // effective voice role (per-line override else task role)

	Rate   float64 // TTS speaking-rate delta
	Volume float64 // TTS volume delta
	Pitch  float64 // TTS pitch delta

	SourceStart float64
	SourceEnd   float64
	TargetStart float64
	TargetEnd   float64

	AudioPath     string  // where the synthesized clip lives / must be written
	RefAudioPath  string  // cut reference sample for cloning, if any
	AudioDuration float64 // actual duration of the synthesized clip
}

// Recognizer converts prepared audio into an ordered subtitle sequence.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string, languageHint string) ([]SubtitleEntry, error)
}

// Translator translates an ordered text list. The pipeline validates that the
// output length matches the input length; providers are not trusted to.
type Translator interface {
	Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)
}

// Synthesizer renders each segment's text to the segment's AudioPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, batch []*DubSegment, targetLang string) error
}

// Separator splits audio into vocal and instrument tracks. Failure is
// recoverable: the task continues with separation disabled.
type Separator interface {
	Separate(ctx context.Context, audioPath, outputDir string) (vocalPath, instrumentPath string, err error)
}

// Names of derived artifacts inside a task's cache directory.
const (
	SourceSubtitleFileName    = "source.srt"
	TargetSubtitleFileName    = "target.srt"
	BilingualSubtitleFileName = "bilingual.srt"
	RawAudioFileName          = "audio_raw.wav"
	RecognitionAudioFileName  = "audio_16k.wav"
	SilentVideoFileName       = "novoice.mp4"
	VocalAudioFileName        = "vocal.wav"
	InstrumentAudioFileName   = "instrument.wav"
	DubbedAudioFileName       = "target_audio.wav"
	MixedAudioFileName        = "target_audio_mixed.m4a"
	EncoderProgressFileName   = "ffmpeg_progress.txt"
	ManifestFileName          = "manifest.txt"
)
