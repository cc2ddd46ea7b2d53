package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
)

// ChatCompletionClient speaks the OpenAI chat-completions convention, which
// several vendors (DeepSeek, Groq, Mistral, OpenRouter, xAI) share.
type ChatCompletionClient struct {
	name   string
	cfg    ProviderConfig
	sender Sender
	auth   authPlacement
	opts   clientOptions
}

var _ Client = (*ChatCompletionClient)(nil)

func NewChatCompletionClient(
	name string,
	cfg ProviderConfig,
	sender Sender,
	opts ...ClientOption,
) *ChatCompletionClient {
	return &ChatCompletionClient{
		name:   name,
		cfg:    cfg.normalized(),
		sender: sender,
		auth:   authPlacement{header: "Authorization", prefix: "Bearer "},
		opts:   newClientOptions(opts),
	}
}

func (c *ChatCompletionClient) Name() string {
	return c.name
}

func (c *ChatCompletionClient) BuildRequest(item Item) (Request, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(promptFor(item, c.opts.location)),
		},
		Temperature: openai.Float(defaultTemperature),
		MaxTokens:   openai.Int(maxSummaryTokens),
	}

	body, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("marshal chat completion params: %w", err)
	}

	header := http.Header{}
	c.auth.apply(header, c.cfg.APIKey)

	return Request{
		URL:    joinEndpoint(c.cfg.Endpoint, "chat/completions"),
		Body:   body,
		Header: header,
	}, nil
}

func (c *ChatCompletionClient) ParseResponse(body []byte) (string, error) {
	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("%w: decode chat completion: %w", ErrMalformedResponse, err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: choices are empty", ErrMalformedResponse)
	}

	return nonEmpty(completion.Choices[0].Message.Content)
}

func (c *ChatCompletionClient) Summarize(ctx context.Context, item Item) (string, error) {
	return summarize(ctx, c.cfg, c.sender, c, item)
}
