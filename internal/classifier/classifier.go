// Package classifier calls the external LLM-based content classifier. The
// model is an opaque collaborator: it receives the content and returns a
// verdict plus a human-readable description of the violation, if any.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const systemPrompt = `You are a content moderator for a social platform. Analyze the submitted content and return strict JSON only, no prose: {"violation": bool, "description": "short explanation of the violation, empty when clean"}.`

// Verdict is the classifier's decision for one piece of content.
type Verdict struct {
	Violation   bool   `json:"violation"`
	Description string `json:"description"`
}

// Options configures the client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to an OpenAI-style chat-completions endpoint.
type Client struct {
	client *resty.Client
	model  string
}

// New creates a classifier client.
func New(opt Options) (*Client, error) {
	if strings.TrimSpace(opt.APIKey) == "" {
		return nil, errors.New("classifier: API key is required")
	}
	if strings.TrimSpace(opt.BaseURL) == "" {
		opt.BaseURL = "https://api.deepseek.com"
	}
	if strings.TrimSpace(opt.Model) == "" {
		opt.Model = "deepseek-chat"
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 15 * time.Second
	}
	return &Client{
		client: resty.New().
			SetBaseURL(strings.TrimRight(opt.BaseURL, "/")).
			SetTimeout(opt.Timeout).
			SetAuthToken(opt.APIKey).
			SetHeader("Content-Type", "application/json"),
		model: opt.Model,
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify submits text and/or an image reference and parses the verdict.
func (c *Client) Classify(ctx context.Context, text, imageURL string) (Verdict, error) {
	var content strings.Builder
	if text != "" {
		content.WriteString("Text content:\n" + text)
	}
	if imageURL != "" {
		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString("Image URL: " + imageURL)
	}
	if content.Len() == 0 {
		return Verdict{}, errors.New("classifier: no content to classify")
	}

	var out chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: content.String()},
			},
		}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return Verdict{}, err
	}
	if resp.IsError() {
		return Verdict{}, errors.New("classifier: upstream status " + resp.Status())
	}
	if len(out.Choices) == 0 {
		return Verdict{}, errors.New("classifier: empty response")
	}

	raw := strings.TrimSpace(out.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var v Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return Verdict{}, errors.New("classifier: malformed verdict: " + err.Error())
	}
	return v, nil
}
