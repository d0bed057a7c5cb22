package explain

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI explains through any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	Client  openai.Client
	Model   string
	Timeout time.Duration
}

func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration) OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return OpenAI{Client: openai.NewClient(opts...), Model: model, Timeout: timeout}
}

func (o OpenAI) Explain(ctx context.Context, prompt string) Result {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	resp, err := o.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(o.Model),
	})
	if err != nil {
		return Unavailable("chat completion: " + err.Error())
	}
	if len(resp.Choices) == 0 {
		return Unavailable("chat completion returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Unavailable("chat completion returned empty content")
	}
	return OK(text)
}
