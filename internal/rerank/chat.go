package rerank

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smartdocs/retrieval/internal/config"
)

// defaultChatModel is a small fast model; reranking prompts are short and
// latency matters more than quality here.
const defaultChatModel = "gpt-4o-mini"

// OpenAIChat implements ChatModel over an OpenAI-compatible chat endpoint.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

// NewOpenAIChat builds a chat model from the credentials in cfg. An empty
// model selects defaultChatModel.
func NewOpenAIChat(cfg *config.Config, model string) *OpenAIChat {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if model == "" {
		model = defaultChatModel
	}
	return &OpenAIChat{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// Complete sends prompt as a single user message and returns the reply text.
func (c *OpenAIChat) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
