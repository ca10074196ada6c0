// Package llm implements entity extraction and metadata profile
// generation on top of an OpenAI-compatible chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
)

// Ensure Extractor implements both collaborator interfaces.
var (
	_ driven.EntityExtractor  = (*Extractor)(nil)
	_ driven.ProfileGenerator = (*Extractor)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the LLM extractor.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for compatible APIs, including local servers.
	BaseURL string

	// Model is the chat model to use (default: gpt-4o-mini).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Extractor calls a chat model for structured extraction tasks.
type Extractor struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// chatCompletionRequest is the /chat/completions request format.
type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	Temperature float64             `json:"temperature"`
}

// chatCompletionMsg is the chat message format.
type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse is the /chat/completions response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// New creates a new LLM extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Extractor{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

const extractSystemPrompt = `You extract typed entities from document text.
Respond with a JSON array only, no prose. Each element is an object with
"class" and "text" keys. Use exact spans from the source text.`

// Extract asks the model for typed entity spans in the text.
func (e *Extractor) Extract(ctx context.Context, text, prompt string) ([]domain.Entity, error) {
	content, err := e.chatCompletion(ctx, []chatCompletionMsg{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: prompt + "\n\nDocument text:\n" + text},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionUnavailable, err)
	}

	var entities []domain.Entity
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &entities); err != nil {
		return nil, fmt.Errorf("%w: model returned invalid entity JSON: %v", domain.ErrExtractionUnavailable, err)
	}
	return entities, nil
}

const profileSystemPrompt = `You design metadata extraction profiles for document corpora.
Respond with a single JSON object only, no prose. The object has keys
"name", "description", "prompt_description" and "fields". Each field has
"name" (snake_case), "type" (string, integer, number or boolean),
"source" ("entities"), "source_classes" (array of entity class names)
and optionally "mode" (values, count, exists or contains) and
"contains_any" (array of lowercase terms, required for mode contains).`

// GenerateProfile asks the model to propose an extraction profile from
// document samples.
func (e *Extractor) GenerateProfile(ctx context.Context, samples []driven.ProfileSample) (*domain.MetadataProfile, error) {
	var sb strings.Builder
	sb.WriteString("Design a metadata profile for a corpus containing documents like these:\n")
	for _, sample := range samples {
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", sample.Filename, sample.Snippet)
	}

	content, err := e.chatCompletion(ctx, []chatCompletionMsg{
		{Role: "system", Content: profileSystemPrompt},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionUnavailable, err)
	}

	var profile domain.MetadataProfile
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &profile); err != nil {
		return nil, fmt.Errorf("%w: model returned invalid profile JSON: %v", domain.ErrExtractionUnavailable, err)
	}
	return &profile, nil
}

func (e *Extractor) chatCompletion(ctx context.Context, messages []chatCompletionMsg) (string, error) {
	jsonBody, err := json.Marshal(chatCompletionRequest{
		Model:    e.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+"/chat/completions",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("llm error: %s", chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm error (status %d): %s", resp.StatusCode, string(body))
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// stripCodeFences removes a surrounding markdown code fence, which chat
// models add despite instructions.
func stripCodeFences(content string) string {
	text := strings.TrimSpace(content)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
