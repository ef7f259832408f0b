// Package translator provides the translation collaborator backed by an
// OpenAI-compatible chat-completion endpoint. Lines are sent as one numbered
// batch so the model keeps context across the whole subtitle file.
package translator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"videotrans/log"
)

const translatePrompt = `You are a professional subtitle translator. Translate every numbered line below from %s to %s.
Rules:
- Output exactly one translated line per input line, keeping the same numbering, formatted as "N. translation".
- Never merge, split, or reorder lines.
- Keep the translation concise enough to be spoken in roughly the same time as the original.
Lines:
%s`

type OpenAiClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAiClient(baseUrl, apiKey, model, proxyAddr string, timeoutSeconds int) *OpenAiClient {
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
		model = "gpt-4o-mini"
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 120
	}
	return &OpenAiClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

var numberedLineRe = regexp.MustCompile(`^\s*(\d+)\s*[.、:：]\s*(.*)$`)

// Translate sends the full ordered text list and reassembles the response by
// line number. The result may be shorter or longer than the input; length
// reconciliation is the pipeline's responsibility, not the provider's.
func (c *OpenAiClient) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var numbered strings.Builder
	for i, t := range texts {
		numbered.WriteString(fmt.Sprintf("%d. %s\n", i+1, strings.ReplaceAll(t, "\n", " ")))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(translatePrompt, sourceLang, targetLang, numbered.String()),
			},
		},
	})
	if err != nil {
		log.GetLogger().Error("translate chat completion failed", zap.Error(err))
		return nil, fmt.Errorf("translate chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("translate: empty completion response")
	}

	results := parseNumberedLines(resp.Choices[0].Message.Content, len(texts))
	log.GetLogger().Info("translate batch done",
		zap.Int("sent", len(texts)), zap.Int("received", len(results)))
	return results, nil
}

// parseNumberedLines maps "N. text" lines back onto their slots. Unnumbered
// continuation lines are appended to the previous slot.
func parseNumberedLines(content string, expected int) []string {
	slots := make([]string, 0, expected)
	byNumber := map[int]string{}
	maxSeen := 0
	last := 0
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if m := numberedLineRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n >= 1 {
				byNumber[n] = m[2]
				if n > maxSeen {
					maxSeen = n
				}
				last = n
				continue
			}
		}
		if last > 0 {
			byNumber[last] = strings.TrimSpace(byNumber[last] + " " + line)
		}
	}
	for i := 1; i <= maxSeen; i++ {
		slots = append(slots, byNumber[i])
	}
	return slots
}
