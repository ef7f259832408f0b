// Package recognizer provides the speech-recognition collaborator backed by
// an OpenAI-compatible whisper endpoint.
package recognizer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"videotrans/internal/types"
	"videotrans/log"
	"videotrans/pkg/subtitle"
)

type WhisperClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewWhisperClient(baseUrl, apiKey, model, proxyAddr string, timeoutSeconds int) *WhisperClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseUrl != "" {
		cfg.BaseURL = baseUrl
	}

	transport := &http.Transport{}
	if proxyAddr != "" {
		if proxyUrl, err := url.Parse(proxyAddr); err == nil {
			transport.Proxy = http.ProxyURL(proxyUrl)
		}
	}
	cfg.HTTPClient = &http.Client{Transport: transport}

	if model == "" {
		model = "whisper-1"
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 300
	}
	return &WhisperClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

// Recognize transcribes the prepared audio and returns the ordered subtitle
// sequence. The per-call timeout is the recognizer's own; the pipeline does
// not impose a task-level deadline.
func (c *WhisperClient) Recognize(ctx context.Context, audioPath string, languageHint string) ([]types.SubtitleEntry, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.AudioRequest{
		Model:    c.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatSRT,
		Language: languageHint,
	}

	resp, err := c.client.CreateTranscription(callCtx, req)
	if err != nil {
		log.GetLogger().Error("whisper transcription failed",
			zap.String("audio", audioPath), zap.Error(err))
		return nil, fmt.Errorf("whisper transcription: %w", err)
	}

	entries, err := subtitle.ParseString(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("whisper srt parse: %w", err)
	}
	log.GetLogger().Info("whisper transcription done",
		zap.String("audio", audioPath), zap.Int("entries", len(entries)))
	return entries, nil
}
