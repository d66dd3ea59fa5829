package llm

import (
	"context"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

// OpenAIImageGenerator renders dream illustrations with the OpenAI images API
type OpenAIImageGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAIImageGenerator(apiKey string, imagesConfig *config.ImagesConfig, opts ...option.RequestOption) (*OpenAIImageGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not configured")
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &OpenAIImageGenerator{
		client: openai.NewClient(opts...),
		model:  imagesConfig.Model,
	}, nil
}

// GenerateImage returns the decoded PNG for prompt
func (g *OpenAIImageGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	started := time.Now()

	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(g.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image generation returned no data")
	}

	png, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"model":    g.model,
		"bytes":    len(png),
		"duration": time.Since(started).String(),
	}).Info("Generated dream image")

	return png, nil
}
