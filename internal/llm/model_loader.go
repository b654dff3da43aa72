package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ModelLoader loads models into a llama.cpp router via the /models/load endpoint.
type ModelLoader struct {
	baseURL string
	client  *http.Client

	pollInterval time.Duration
	maxAttempts  int
}

// NewModelLoader creates a new model loader.
func NewModelLoader(baseURL string) *ModelLoader {
	return &ModelLoader{
		baseURL:      baseURL,
		client:       newHTTPClient(),
		pollInterval: time.Second,
		maxAttempts:  30,
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// LoadModelRequest represents the request payload for loading a model.
type LoadModelRequest struct {
	Model     string   `json:"model"`
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// LoadModelResponse represents the response from the load model endpoint.
type LoadModelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ModelStatus represents the status of a model from the /models endpoint.
type ModelStatus struct {
	ID      string `json:"id"`
	InCache bool   `json:"in_cache"`
	Status  struct {
		Value    string `json:"value"`
		ExitCode *int   `json:"exit_code,omitempty"`
		Failed   *bool  `json:"failed,omitempty"`
	} `json:"status"`
}

// ModelsResponse represents the response from the /models endpoint.
type ModelsResponse struct {
	Data []ModelStatus `json:"data"`
}

// modelStatus returns the server's status entry for a model, or nil if it is not listed.
func (ml *ModelLoader) modelStatus(ctx context.Context, modelName string) (*ModelStatus, error) {
	modelsURL := fmt.Sprintf("%s/models", ml.baseURL)
	req, err := http.NewRequestWithContext(ctx, "GET", modelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := ml.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check model status: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var modelsResp ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	for i := range modelsResp.Data {
		if modelsResp.Data[i].ID == modelName {
			return &modelsResp.Data[i], nil
		}
	}
	return nil, nil
}

// IsModelLoaded checks if a model is already loaded (in cache) in the server.
func (ml *ModelLoader) IsModelLoaded(ctx context.Context, modelName string) (bool, error) {
	status, err := ml.modelStatus(ctx, modelName)
	if err != nil {
		return false, err
	}
	return status != nil && status.InCache, nil
}

// LoadModel loads a model with optional extra arguments and waits until the
// server reports it in cache. A model already in cache is not reloaded.
func (ml *ModelLoader) LoadModel(ctx context.Context, modelName string, extraArgs []string) error {
	// A failed status check falls through to the load attempt.
	if loaded, err := ml.IsModelLoaded(ctx, modelName); err == nil && loaded {
		return nil
	}

	url := fmt.Sprintf("%s/models/load", ml.baseURL)

	body, err := json.Marshal(LoadModelRequest{Model: modelName, ExtraArgs: extraArgs})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ml.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var loadResp LoadModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&loadResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !loadResp.Success {
		return fmt.Errorf("model load failed: %s", loadResp.Error)
	}

	// /models/load returns before loading finishes, so poll until the model is in cache.
	for i := 0; i < ml.maxAttempts; i++ {
		status, err := ml.modelStatus(ctx, modelName)
		if err == nil && status != nil {
			if status.InCache {
				return nil
			}
			if status.Status.Failed != nil && *status.Status.Failed {
				exitCode := 0
				if status.Status.ExitCode != nil {
					exitCode = *status.Status.ExitCode
				}
				return fmt.Errorf("model load failed with exit code %d", exitCode)
			}
		}

		select {
		case <-time.After(ml.pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("model did not load within timeout period")
}
