// Package openaicompat adapts an OpenAI-compatible chat/embeddings API
// (OpenAI itself, or any server implementing the same wire format) to the
// graphrag engine's Generate/ChatGenerate/Embed callable shapes.
package openaicompat

import (
	"context"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/graphrag-go/graphrag"
	"github.com/graphrag-go/graphrag/model"
	"github.com/graphrag-go/graphrag/query"
)

// Config configures the client. BaseURL may point at any OpenAI-compatible
// server (vLLM, llama.cpp, Ollama's OpenAI shim, etc); left empty it
// defaults to api.openai.com.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	HTTPClient     *http.Client
}

// Client wraps an openai-go client with the fixed model names from Config.
type Client struct {
	sdk            openai.Client
	chatModel      string
	embeddingModel string
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
	return &Client{
		sdk:            openai.NewClient(opts...),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
	}
}

// Generate implements graphrag.Generate: a single system+user completion
// call, used by extraction and merge re-summarization.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := c.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatGenerate implements graphrag.ChatGenerate: a system prompt plus a
// prior conversation history plus a final prompt, used by query
// generation.
func (c *Client) ChatGenerate(ctx context.Context, system string, history []model.Turn, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(system))
	for _, turn := range history {
		if turn.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed implements graphrag.Embed / query.Embed, order-preserving over
// texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.sdk.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

var (
	_ graphrag.Generate     = (&Client{}).Generate
	_ graphrag.ChatGenerate = (&Client{}).ChatGenerate
	_ graphrag.Embed        = (&Client{}).Embed
	_ query.Embed           = (&Client{}).Embed
)
