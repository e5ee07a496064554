// Package anthropic adapts the Anthropic Messages API to the graphrag
// engine's Generate/ChatGenerate callable shapes. Anthropic has no
// embeddings endpoint, so this package does not implement query.Embed;
// pair it with an embedding-capable provider (e.g. openaicompat) when
// wiring an Engine.
package anthropic

import (
	"context"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/graphrag-go/graphrag"
	"github.com/graphrag-go/graphrag/model"
)

// Config configures the client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int64
	HTTPClient *http.Client
}

const defaultMaxTokens = int64(4096)

// Client wraps an anthropic-sdk-go client with the fixed model/max-tokens
// from Config.
type Client struct {
	sdk       sdk.Client
	model     string
	maxTokens int64
}

// New builds a Client.
func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		sdk:       sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Generate implements graphrag.Generate.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := c.sdk.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
	})
	if err != nil {
		return "", err
	}
	return textFromMessage(resp), nil
}

// ChatGenerate implements graphrag.ChatGenerate.
func (c *Client) ChatGenerate(ctx context.Context, system string, history []model.Turn, prompt string) (string, error) {
	messages := make([]sdk.MessageParam, 0, len(history)+1)
	for _, turn := range history {
		if turn.Role == "assistant" {
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(turn.Content)))
		} else {
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(turn.Content)))
		}
	}
	messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(prompt)))

	resp, err := c.sdk.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages:  messages,
	})
	if err != nil {
		return "", err
	}
	return textFromMessage(resp), nil
}

func textFromMessage(msg *sdk.Message) string {
	var out string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}

var (
	_ graphrag.Generate     = (&Client{}).Generate
	_ graphrag.ChatGenerate = (&Client{}).ChatGenerate
)
