// Package llm подключает языковые модели к узлам aiTask и openAiChatCompletion.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/shaiso/Flowline/internal/nodes"
)

// ErrEmptyResponse — модель вернула пустой ответ.
var ErrEmptyResponse = errors.New("model returned empty response")

// Config — параметры модели по умолчанию.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// ChatModel — реализация nodes.ChatModel поверх eino.
// Параметры узла (model, temperature, maxTokens) передаются как опции вызова.
type ChatModel struct {
	model model.BaseChatModel
}

// NewChatModel создаёт OpenAI-совместимую модель eino.
func NewChatModel(ctx context.Context, cfg Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: AI API key is empty", nodes.ErrProviderNotConfigured)
	}

	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temperature := cfg.Temperature
		modelConfig.Temperature = &temperature
	}

	m, err := einoopenai.NewChatModel(ctx, modelConfig)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return NewChatModelFrom(m), nil
}

// NewChatModelFrom оборачивает готовую модель eino.
func NewChatModelFrom(m model.BaseChatModel) *ChatModel {
	return &ChatModel{model: m}
}

// Complete реализует nodes.ChatModel.
func (c *ChatModel) Complete(ctx context.Context, req nodes.ChatRequest) (string, error) {
	messages := make([]*schema.Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, schema.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, schema.UserMessage(req.Prompt))

	var opts []model.Option
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*req.MaxTokens))
	}

	out, err := c.model.Generate(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if out == nil || out.Content == "" {
		return "", ErrEmptyResponse
	}
	return out.Content, nil
}
