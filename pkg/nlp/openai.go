package nlp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/soundprediction/graphquery/pkg/types"
)

// OpenAIClient implements Client against OpenAI or any OpenAI-compatible service.
type OpenAIClient struct {
	client *openai.Client
	config Config
}

// NewOpenAIClient creates a new OpenAI client.
// A non-empty BaseURL points the client at an OpenAI-compatible service.
func NewOpenAIClient(apiKey string, config Config) (*OpenAIClient, error) {
	var client *openai.Client

	if config.BaseURL != "" {
		if err := validateBaseURL(config.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}

		// Local services often run without authentication
		if apiKey == "" {
			apiKey = "dummy-key"
		}

		clientConfig := openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
		if !hasAPIPath(clientConfig.BaseURL) {
			clientConfig.BaseURL += "/v1"
		}
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		if apiKey == "" {
			return nil, fmt.Errorf("%w: api key is required", ErrNoClient)
		}
		client = openai.NewClient(apiKey)
	}

	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	return &OpenAIClient{
		client: client,
		config: config,
	}, nil
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.complete(ctx, c.buildChatRequest(messages, false))
}

// ChatWithStructuredOutput sends a chat completion request in JSON object mode.
// The schema is described to the model by the prompt; it is not sent on the wire.
func (c *OpenAIClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return c.complete(ctx, c.buildChatRequest(messages, true))
}

// Close is a no-op; the underlying HTTP client holds no resources.
func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (*types.Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewEmptyResponseError(fmt.Sprintf("no choices returned from %s", c.service()))
	}

	choice := resp.Choices[0]
	response := &types.Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
	}

	// Some compatible services omit usage
	if resp.Usage.TotalTokens > 0 {
		response.TokensUsed = &types.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return response, nil
}

func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s chat completion failed: %w", c.service(), NewRateLimitError(apiErr.Message))
	}
	return fmt.Errorf("%s chat completion failed: %w", c.service(), err)
}

func (c *OpenAIClient) service() string {
	if c.config.BaseURL != "" {
		return "openai-compatible"
	}
	return "openai"
}

func (c *OpenAIClient) buildChatRequest(messages []types.Message, structuredOutput bool) openai.ChatCompletionRequest {
	openaiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openaiMessages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: openaiMessages,
	}
	if c.config.Temperature != nil {
		req.Temperature = *c.config.Temperature
	}
	if c.config.MaxTokens != nil {
		req.MaxTokens = *c.config.MaxTokens
	}
	if c.config.TopP != nil {
		req.TopP = *c.config.TopP
	}
	if len(c.config.Stop) > 0 {
		req.Stop = c.config.Stop
	}

	if structuredOutput {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
		// Compatible services frequently ignore response_format
		if c.config.BaseURL != "" && len(req.Messages) > 0 {
			last := &req.Messages[len(req.Messages)-1]
			if last.Role == string(RoleUser) {
				last.Content += "\n\nPlease respond with valid JSON only."
			}
		}
	}
	return req
}

// validateBaseURL validates the base URL format.
func validateBaseURL(baseURL string) error {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid baseURL format: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("baseURL must use http:// or https:// scheme")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("baseURL must include a host")
	}
	return nil
}

// hasAPIPath checks if the base URL already ends in an API path component.
func hasAPIPath(baseURL string) bool {
	for _, path := range []string{"/v1", "/api"} {
		if strings.HasSuffix(baseURL, path) {
			return true
		}
	}
	return false
}
