// Package ttsclient provides the speech-synthesis collaborator, speaking an
// OpenAI-compatible /audio/speech HTTP API. A batch is rendered with bounded
// concurrency; each segment's clip is written to the segment's AudioPath.
package ttsclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"videotrans/internal/types"
	"videotrans/log"
)

const synthesisConcurrency = 3

type Client struct {
	http    *resty.Client
	baseUrl string
}

func NewClient(baseUrl, apiKey, proxyAddr string, timeoutSeconds int) *Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 120
	}
	http := resty.New().
		SetTimeout(time.Duration(timeoutSeconds) * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	if apiKey != "" {
		http.SetAuthToken(apiKey)
	}
	if proxyAddr != "" {
		http.SetProxy(proxyAddr)
	}
	return &Client{http: http, baseUrl: baseUrl}
}

type speechRequest struct {
	Input    string  `json:"input"`
	Voice    string  `json:"voice"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
	RefAudio string  `json:"ref_audio,omitempty"` // path to the cloning reference sample
	Format   string  `json:"response_format"`
}

// Synthesize renders every segment in the batch. Segments whose AudioPath
// already exists are assumed done by the caller and are not resent here.
func (c *Client) Synthesize(ctx context.Context, batch []*types.DubSegment, targetLang string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(synthesisConcurrency)

	for _, seg := range batch {
		seg := seg
		g.Go(func() error {
			return c.synthesizeOne(gctx, seg, targetLang)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.GetLogger().Info("tts batch done", zap.Int("segments", len(batch)))
	return nil
}

func (c *Client) synthesizeOne(ctx context.Context, seg *types.DubSegment, targetLang string) error {
	if err := os.MkdirAll(filepath.Dir(seg.AudioPath), 0o755); err != nil {
		return fmt.Errorf("tts output dir: %w", err)
	}

	req := speechRequest{
		Input:    seg.Text,
		Voice:    seg.Role,
		Language: targetLang,
		Speed:    seg.Rate,
		Volume:   seg.Volume,
		Pitch:    seg.Pitch,
		RefAudio: seg.RefAudioPath,
		Format:   "wav",
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetOutput(seg.AudioPath).
		Post(c.baseUrl + "/audio/speech")
	if err != nil {
		log.GetLogger().Error("tts request failed",
			zap.Int("line", seg.Index), zap.String("voice", seg.Role), zap.Error(err))
		return fmt.Errorf("tts line %d: %w", seg.Index, err)
	}
	if resp.IsError() {
		return fmt.Errorf("tts line %d: status %d", seg.Index, resp.StatusCode())
	}

	if st, err := os.Stat(seg.AudioPath); err != nil || st.Size() == 0 {
		return fmt.Errorf("tts line %d: empty output file", seg.Index)
	}
	return nil
}
