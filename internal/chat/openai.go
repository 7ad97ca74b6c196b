package chat

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
)

// OpenAIGenerator generates answers with the OpenAI chat completions API
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator using the given model
func NewOpenAIGenerator(client openai.Client, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIGenerator{client: client, model: model}
}

func (g *OpenAIGenerator) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: buildMessages(req),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) StreamComplete(ctx context.Context, req Request, emit func(delta string)) (string, error) {
	stream := g.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: buildMessages(req),
	})
	defer stream.Close()

	var full string
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full += delta
		emit(delta)
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("failed to stream chat completion: %w", err)
	}
	return full, nil
}

// buildMessages flattens the prompt into the OpenAI message list: system
// prompt, then prior turns as alternating user/assistant pairs, then the
// current query.
func buildMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2*len(req.History)+2)
	messages = append(messages, openai.SystemMessage(req.System))
	for _, m := range req.History {
		messages = append(messages, openai.UserMessage(m.UserQuery))
		messages = append(messages, openai.AssistantMessage(m.BotResponse))
	}
	messages = append(messages, openai.UserMessage(req.Query))
	return messages
}
