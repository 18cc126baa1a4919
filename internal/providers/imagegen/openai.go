// Package imagegen — генерация изображений для узла generateImage.
package imagegen

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/shaiso/Flowline/internal/nodes"
)

const (
	defaultModel = "dall-e-3"
	defaultSize  = "1024x1024"
)

// ErrNoImage — провайдер не вернул изображение.
var ErrNoImage = errors.New("provider returned no image")

// Config — параметры провайдера.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Generator — реализация nodes.ImageGenerator на openai-go.
type Generator struct {
	client openai.Client
	model  string
}

// New создаёт Generator.
func New(cfg Config, opts ...option.RequestOption) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: image API key is empty", nodes.ErrProviderNotConfigured)
	}

	all := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	if cfg.BaseURL != "" {
		all = append(all, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Generator{client: openai.NewClient(all...), model: model}, nil
}

// GenerateImage возвращает URL изображения или data URI с base64.
func (g *Generator) GenerateImage(ctx context.Context, req nodes.ImageRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	size := req.Size
	if size == "" {
		size = defaultSize
	}

	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(model),
		Size:   openai.ImageGenerateParamsSize(size),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", ErrNoImage
	}

	img := resp.Data[0]
	switch {
	case img.URL != "":
		return img.URL, nil
	case img.B64JSON != "":
		return "data:image/png;base64," + img.B64JSON, nil
	default:
		return "", ErrNoImage
	}
}
