// Package ollama recognizes text in images with a vision model served by
// Ollama.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/ocr-overlay/pkg/client"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

// DefaultPrompt asks the model for the transcription and its own confidence
const DefaultPrompt = `Transcribe all text visible in this image, preserving reading order.
Respond with JSON only, in the form {"text": "<transcribed text>", "confidence": <0-100>}.
If there is no text, respond with {"text": "", "confidence": 0}.`

var _ client.TextRecognizer = (*Client)(nil)

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	model   string
	prompt  string
	timeout time.Duration
}

// NewClient creates a new Ollama recognizer for model
func NewClient(ollamaURL, model string) (*Client, error) {
	// Parse the provided URL
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client:  api.NewClient(baseURL, http.DefaultClient),
		model:   model,
		prompt:  DefaultPrompt,
		timeout: 300 * time.Second,
	}, nil
}

// SetPrompt replaces the transcription prompt
func (c *Client) SetPrompt(prompt string) {
	if prompt != "" {
		c.prompt = prompt
	}
}

// SetTimeout bounds calls whose context carries no deadline
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Recognize sends the raw image to the model and parses its transcription
func (c *Client) Recognize(ctx context.Context, data []byte) (types.Recognition, error) {
	// Vision models on CPU are slow
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: c.prompt,
				Images:  []api.ImageData{api.ImageData(data)},
			},
		},
		Stream: &streamFalse,
		Options: map[string]any{
			"temperature": 0,
		},
	}

	var responseContent string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent = resp.Message.Content
		return nil
	})
	if err != nil {
		return types.Recognition{}, fmt.Errorf("%w: ollama chat error: %v", types.ErrNetwork, err)
	}

	if responseContent == "" {
		return types.Recognition{}, fmt.Errorf("empty response from ollama")
	}

	return parseRecognition(responseContent), nil
}

// parseRecognition reads the model reply. Replies that are not the requested
// JSON are taken as plain transcriptions with unknown (zero) confidence.
func parseRecognition(raw string) types.Recognition {
	cleaned := sanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return types.Recognition{Text: strings.TrimSpace(raw)}
	}

	var reply struct {
		Text       string          `json:"text"`
		Confidence json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return types.Recognition{Text: strings.TrimSpace(raw)}
	}

	return types.Recognition{
		Text:       strings.TrimSpace(reply.Text),
		Confidence: parseConfidence(reply.Confidence),
	}
}

// parseConfidence accepts numbers or numeric strings, on a 0-1 or 0-100
// scale, and clamps the result to [0,100]
func parseConfidence(raw json.RawMessage) float64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if v > 0 && v <= 1 {
		v *= 100
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	// Remove /* ... */ block comments and whole-line // comments. Inline //
	// is left alone since transcribed text may contain URLs.
	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")

	// Remove trailing commas before } or ]
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
