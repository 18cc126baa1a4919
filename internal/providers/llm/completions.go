package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/shaiso/Flowline/internal/nodes"
)

const defaultCompletionModel = "gpt-4o-mini"

// Completions — реализация nodes.ChatCompleter на openai-go.
// Ключ берётся из узла (credential пользователя), клиент создаётся на вызов.
type Completions struct {
	baseURL string
	opts    []option.RequestOption
}

// NewCompletions создаёт клиент chat completions. Пустой baseURL — api.openai.com.
func NewCompletions(baseURL string, opts ...option.RequestOption) *Completions {
	return &Completions{baseURL: baseURL, opts: opts}
}

// CreateChatCompletion реализует nodes.ChatCompleter.
func (c *Completions) CreateChatCompletion(ctx context.Context, req nodes.CompletionRequest) (map[string]any, error) {
	opts := append([]option.RequestOption{option.WithAPIKey(req.APIKey)}, c.opts...)
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	client := openai.NewClient(opts...)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "developer":
			messages = append(messages, openai.DeveloperMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		case "user", "":
			messages = append(messages, openai.UserMessage(m.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	model := req.Model
	if model == "" {
		model = defaultCompletionModel
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(resp.RawJSON()), &out); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	return out, nil
}
