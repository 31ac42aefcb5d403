package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	healthTimeout    = 5 * time.Second
	generateEndpoint = "/api/generate"
	tagsEndpoint     = "/api/tags"
	defaultOllamaURL = "http://localhost:11434"
	defaultModel     = "moondream"
)

// OllamaClassifier talks to an Ollama-compatible inference API.
type OllamaClassifier struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaClassifier(baseURL, model string, timeout time.Duration) *OllamaClassifier {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OllamaClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Images  []string        `json:"images"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

type generateResponse struct {
	Response      string `json:"response"`
	TotalDuration int64  `json:"total_duration"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (o *OllamaClassifier) Classify(ctx context.Context, imageBase64, prompt string) (*Result, error) {
	if prompt == "" {
		prompt = DefaultPrompt
	}

	payload := generateRequest{
		Model:  o.model,
		Prompt: prompt,
		Images: []string{imageBase64},
		Stream: false,
		Options: generateOptions{
			Temperature: 0.1,
			TopP:        0.9,
			TopK:        40,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+generateEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: inference API returned %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}
	if decoded.Response == "" {
		return nil, fmt.Errorf("%w: empty response from inference API", ErrUnavailable)
	}

	return &Result{
		Classification: strings.TrimSpace(decoded.Response),
		Model:          o.model,
		Prompt:         prompt,
		ProcessingTime: time.Duration(decoded.TotalDuration),
	}, nil
}

func (o *OllamaClassifier) Status(ctx context.Context) *Status {
	status := &Status{
		Model: o.model,
		URL:   o.baseURL,
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+tagsEndpoint, nil)
	if err != nil {
		return status
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return status
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status
	}
	status.ServiceAvailable = true

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return status
	}
	for _, model := range tags.Models {
		if strings.Contains(model.Name, o.model) {
			status.ModelAvailable = true
			break
		}
	}
	return status
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ Classifier = (*OllamaClassifier)(nil)
