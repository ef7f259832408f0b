// Package dto holds the request/response bodies of the HTTP API.
package dto

import (
	"videotrans/internal/task"
	"videotrans/internal/types"
)

// StartTaskReq is the body of POST /api/task.
type StartTaskReq struct {
	SourcePath     string         `json:"source_path" binding:"required"`
	TargetDir      string         `json:"target_dir"`
	SourceLanguage string         `json:"source_language" binding:"required"`
	TargetLanguage string         `json:"target_language"`
	AppMode        string         `json:"app_mode"`
	EmbedMode      string         `json:"embed_mode"`
	VoiceRole      string         `json:"voice_role"`
	LineRoles      map[int]string `json:"line_roles"`
	TtsBackend     string         `json:"tts_backend"`
	RemoveNoise    bool           `json:"remove_noise"`
	SeparateVocals bool           `json:"separate_vocals"`
	OnlyKeepVideo  bool           `json:"only_keep_video"`
	VoiceAutoRate  bool           `json:"voice_auto_rate"`
	VideoAutoRate  bool           `json:"video_auto_rate"`
	VoiceClone     bool           `json:"voice_clone"`
	VolumeDelta    float64        `json:"volume_delta"`
	PitchDelta     float64        `json:"pitch_delta"`
	RateDelta      float64        `json:"rate_delta"`
}

// ToTaskConfig maps the request onto the validated task configuration.
func (r StartTaskReq) ToTaskConfig() task.Config {
	return task.Config{
		SourcePath:     r.SourcePath,
		TargetDir:      r.TargetDir,
		SourceLanguage: r.SourceLanguage,
		TargetLanguage: r.TargetLanguage,
		AppMode:        types.AppMode(r.AppMode),
		EmbedMode:      types.EmbedMode(r.EmbedMode),
		VoiceRole:      r.VoiceRole,
		LineRoles:      r.LineRoles,
		TtsBackend:     r.TtsBackend,
		RemoveNoise:    r.RemoveNoise,
		SeparateVocals: r.SeparateVocals,
		OnlyKeepVideo:  r.OnlyKeepVideo,
		VoiceAutoRate:  r.VoiceAutoRate,
		VideoAutoRate:  r.VideoAutoRate,
		VoiceClone:     r.VoiceClone,
		VolumeDelta:    r.VolumeDelta,
		PitchDelta:     r.PitchDelta,
		RateDelta:      r.RateDelta,
	}
}

// StartTaskResp returns the id the client polls with. Durable submissions get
// a queue id instead; the task id is assigned when the worker picks it up.
type StartTaskResp struct {
	TaskId  string `json:"task_id,omitempty"`
	QueueId string `json:"queue_id,omitempty"`
}
