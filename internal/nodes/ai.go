package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaiso/Flowline/internal/domain"
)

const defaultSimulatedAIOutput = "Simulated AI output."

// AITaskExecutor — узел генерации текста (aiTask).
//
// Конфигурация:
//
//	{
//	    "prompt": "Summarize: {{fetch.data.text}}",
//	    "systemPrompt": "You are a concise assistant.",
//	    "model": "gpt-4o-mini",
//	    "temperature": 0.2,
//	    "maxTokens": 512
//	}
//
// Выход: {"output": "..."}.
type AITaskExecutor struct{}

// NewAITaskExecutor создаёт AITaskExecutor.
func NewAITaskExecutor() *AITaskExecutor {
	return &AITaskExecutor{}
}

// Type возвращает тип узла.
func (e *AITaskExecutor) Type() domain.NodeType {
	return domain.NodeTypeAITask
}

// Execute генерирует текст по prompt.
func (e *AITaskExecutor) Execute(ctx context.Context, req *Request) (Output, error) {
	prompt := GetConfigString(req.Config, "prompt")

	if req.Simulation() {
		req.Logf("Would send prompt to model %q (%d chars).", GetConfigString(req.Config, "model"), len(prompt))
		return Output{"output": simulatedOr(req.Config, defaultSimulatedAIOutput, "simulatedOutput")}, nil
	}

	if strings.TrimSpace(prompt) == "" {
		return nil, invalidConfig(domain.NodeTypeAITask, "prompt is required")
	}
	if req.Exec == nil || req.Exec.Chat == nil {
		return nil, fmt.Errorf("%w: chat model for %s", ErrProviderNotConfigured, domain.NodeTypeAITask)
	}

	chatReq := ChatRequest{
		Model:        GetConfigString(req.Config, "model"),
		SystemPrompt: GetConfigString(req.Config, "systemPrompt"),
		Prompt:       prompt,
	}
	if t, ok := GetConfigFloat(req.Config, "temperature"); ok {
		temp := float32(t)
		chatReq.Temperature = &temp
	}
	if n := GetConfigInt(req.Config, "maxTokens"); n > 0 {
		chatReq.MaxTokens = &n
	}

	req.Logf("Sending prompt to model %q.", chatReq.Model)
	text, err := req.Exec.Chat.Complete(ctx, chatReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, fmt.Errorf("ai generation failed: %w", err)
	}
	return Output{"output": text}, nil
}

// GenerateImageExecutor — узел генерации изображения.
//
// Конфигурация: {"prompt": "...", "model": "dall-e-3", "size": "1024x1024"}.
// Выход: {"output": "<url или base64>"}.
type GenerateImageExecutor struct{}

// NewGenerateImageExecutor создаёт GenerateImageExecutor.
func NewGenerateImageExecutor() *GenerateImageExecutor {
	return &GenerateImageExecutor{}
}

// Type возвращает тип узла.
func (e *GenerateImageExecutor) Type() domain.NodeType {
	return domain.NodeTypeGenerateImage
}

// Execute генерирует изображение.
func (e *GenerateImageExecutor) Execute(ctx context.Context, req *Request) (Output, error) {
	prompt := GetConfigString(req.Config, "prompt")

	if req.Simulation() {
		req.Logf("Would generate image for prompt (%d chars).", len(prompt))
		return Output{"output": simulatedOr(req.Config, "https://placehold.co/1024x1024.png", "simulatedOutput")}, nil
	}

	if strings.TrimSpace(prompt) == "" {
		return nil, invalidConfig(domain.NodeTypeGenerateImage, "prompt is required")
	}
	if req.Exec == nil || req.Exec.Images == nil {
		return nil, fmt.Errorf("%w: image generator for %s", ErrProviderNotConfigured, domain.NodeTypeGenerateImage)
	}

	req.Logf("Generating image.")
	image, err := req.Exec.Images.GenerateImage(ctx, ImageRequest{
		Prompt: prompt,
		Model:  GetConfigString(req.Config, "model"),
		Size:   GetConfigString(req.Config, "size"),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	return Output{"output": image}, nil
}

// OpenAIChatExecutor — узел openAiChatCompletion с ключом пользователя.
//
// Конфигурация:
//
//	{
//	    "apiKey": "{{credential.OpenAIKey}}",
//	    "model": "gpt-4o-mini",
//	    "messages": [{"role": "user", "content": "Hello"}]   // или JSON-строка
//	}
//
// Выход: {"output": <ответ API>}.
type OpenAIChatExecutor struct{}

// NewOpenAIChatExecutor создаёт OpenAIChatExecutor.
func NewOpenAIChatExecutor() *OpenAIChatExecutor {
	return &OpenAIChatExecutor{}
}

// Type возвращает тип узла.
func (e *OpenAIChatExecutor) Type() domain.NodeType {
	return domain.NodeTypeOpenAIChatCompletion
}

// Execute вызывает chat completions.
func (e *OpenAIChatExecutor) Execute(ctx context.Context, req *Request) (Output, error) {
	model := GetConfigString(req.Config, "model")

	if req.Simulation() {
		req.Logf("Would send prompt to model %s.", model)
		return Output{"output": req.Config["simulated_config"]}, nil
	}

	apiKey := GetConfigString(req.Config, "apiKey")
	if apiKey == "" || strings.Contains(apiKey, "{{") {
		return nil, invalidConfig(domain.NodeTypeOpenAIChatCompletion,
			"OpenAI API key is not configured or resolved; set {{credential.OpenAIKey}}")
	}

	messages, err := parseChatMessages(req.Config["messages"])
	if err != nil {
		return nil, invalidConfig(domain.NodeTypeOpenAIChatCompletion, "messages: %v", err)
	}
	if req.Exec == nil || req.Exec.Completions == nil {
		return nil, fmt.Errorf("%w: chat completions for %s", ErrProviderNotConfigured, domain.NodeTypeOpenAIChatCompletion)
	}

	req.Logf("Sending %d message(s) to model %s.", len(messages), model)
	resp, err := req.Exec.Completions.CreateChatCompletion(ctx, CompletionRequest{
		APIKey:   apiKey,
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	return Output{"output": resp}, nil
}

// parseChatMessages принимает массив сообщений или JSON-строку с массивом.
func parseChatMessages(raw any) ([]ChatMessage, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("not configured or resolved")
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = b
	}

	var messages []ChatMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("expected an array of {role, content}: %w", err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}
	return messages, nil
}
