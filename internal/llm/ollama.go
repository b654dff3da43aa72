package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaClient talks to an Ollama server's native chat API.
type OllamaClient struct {
	BaseURL string
	Model   string
	client  *http.Client
}

// NewOllamaClient creates a client for the Ollama server at baseURL.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		client:  http.DefaultClient,
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// Name returns the default model.
func (c *OllamaClient) Name() string {
	return c.Model
}

// ChatWithMessages sends a non-streaming request to /api/chat.
func (c *OllamaClient) ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	model := params.Model
	if model == "" {
		model = c.Model
	}

	payload := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Options:  buildOptions(params),
	}

	var chatResp ollamaChatResponse
	if err := c.post(ctx, "/api/chat", payload, &chatResp); err != nil {
		return "", err
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("ollama: %s", chatResp.Error)
	}
	if !chatResp.Done {
		return "", fmt.Errorf("ollama: incomplete response")
	}

	return chatResp.Message.Content, nil
}

// Warmup sends an empty generate request, which makes Ollama load the model.
func (c *OllamaClient) Warmup(ctx context.Context) error {
	return c.post(ctx, "/api/generate", map[string]any{"model": c.Model}, nil)
}

func (c *OllamaClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama: %s returned %s: %s", path, resp.Status, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func buildOptions(params ChatParams) map[string]any {
	options := map[string]any{}
	if params.Temperature > 0 {
		options["temperature"] = params.Temperature
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}
	if len(options) == 0 {
		return nil
	}
	return options
}
