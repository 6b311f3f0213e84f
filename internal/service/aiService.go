package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scholarmark/scholarmark-api/internal/config"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// AIService is the adapter around the completion API the writing features
// proxy to. Admission decisions happen before any call reaches it.
type AIService struct {
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	maxRetries  int
	client      *http.Client
	endpoint    string
}

func NewAIService(cfg config.OpenAIConfig) *AIService {
	return &AIService{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		endpoint: openAIEndpoint,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt to the completion API with bounded retries and
// exponential backoff, returning the first choice's content.
func (s *AIService) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, retryable, err := s.doRequest(ctx, payload)
		if err == nil {
			return content, nil
		}

		lastErr = err
		if !retryable {
			return "", err
		}
	}

	return "", fmt.Errorf("ai service unavailable: %w", lastErr)
}

func (s *AIService) doRequest(ctx context.Context, payload []byte) (content string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, err
	}

	// Rate limits and upstream faults are worth retrying, client errors are not
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("completion API returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("completion API returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("completion API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("completion API returned no choices")
	}

	return parsed.Choices[0].Message.Content, false, nil
}
