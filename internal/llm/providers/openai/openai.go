// internal/llm/providers/openai/openai.go
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm"
)

func init() {
	llm.Register("openai", func() llm.Provider {
		return &Provider{
			name:         "openai",
			baseURL:      "https://api.openai.com/v1",
			defaultModel: "gpt-5-mini",
		}
	})
	llm.Register("openrouter", func() llm.Provider {
		return &Provider{
			name:         "openrouter",
			baseURL:      "https://openrouter.ai/api/v1",
			defaultModel: "openai/gpt-4o-mini",
		}
	})
}

// Provider talks to any OpenAI-compatible /chat/completions endpoint.
type Provider struct {
	name         string
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	httpReferer  string // OpenRouter attribution
	appName      string
}

// New builds an initialized provider without going through the registry.
func New(name string, config map[string]string) (*Provider, error) {
	p := &Provider{name: name, defaultModel: "gpt-5-mini"}
	if err := p.Initialize(config); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return fmt.Errorf("%s: api key not provided", p.name)
	}
	p.apiKey = apiKey
	p.client = &http.Client{Timeout: 2 * time.Minute}

	if model := config["default_model"]; model != "" {
		p.defaultModel = model
	}
	if baseURL := config["base_url"]; baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	if p.baseURL == "" {
		return fmt.Errorf("%s: base url not provided", p.name)
	}
	p.httpReferer = config["http_referer"]
	p.appName = config["app_name"]
	return nil
}

func (p *Provider) GetName() string {
	return p.name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := []chatMessage{{Role: "user", Content: req.Prompt}}
	if req.SystemPrompt != "" {
		messages = append([]chatMessage{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	body := chatRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stop:      req.StopWords,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.httpReferer != "" {
		httpReq.Header.Set("HTTP-Referer", p.httpReferer)
	}
	if p.appName != "" {
		httpReq.Header.Set("X-Title", p.appName)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.TransportError{Provider: p.name, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &llm.APIError{
			Provider:   p.name,
			StatusCode: httpResp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	var response chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	if len(response.Choices) == 0 {
		return nil, errors.Join(llm.ErrEmptyCompletion, fmt.Errorf("%s returned no choices", p.name))
	}

	modelName := response.Model
	if modelName == "" {
		modelName = model
	}
	return &llm.CompletionResponse{
		Text:         response.Choices[0].Message.Content,
		FinishReason: response.Choices[0].FinishReason,
		PromptTokens: response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
		ModelName:    modelName,
		ProviderName: p.name,
	}, nil
}
