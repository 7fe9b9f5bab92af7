package generators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"EduQuest/server/internal/config"
	"EduQuest/server/internal/interfaces"
)

const defaultImageTimeout = 120 * time.Second

// stylePrefix anchors every illustration to the game's pixel-art look.
const stylePrefix = "Pixel art style, 16-bit retro game aesthetic, vibrant colors, child-friendly."

// ImageClient renders level illustrations through an OpenAI-compatible
// images API.
type ImageClient struct {
	client  *openai.Client
	model   string
	size    string
	timeout time.Duration
}

// NewImageClient creates an image client from configuration.
func NewImageClient(cfg config.ImageConfig) *ImageClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	size := cfg.Size
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultImageTimeout
	}

	return &ImageClient{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		size:    size,
		timeout: timeout,
	}
}

// GenerateImage renders one illustration and returns its URL.
func (c *ImageClient) GenerateImage(ctx context.Context, prompt interfaces.ImagePrompt, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.CreateImage(callCtx, openai.ImageRequest{
		Prompt:         BuildImagePrompt(prompt),
		Model:          c.model,
		Size:           c.size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("image generation returned no data")
	}

	return resp.Data[0].URL, nil
}

// BuildImagePrompt joins the storyboard's visual fields into one rendering
// prompt, skipping empty sections.
func BuildImagePrompt(p interfaces.ImagePrompt) string {
	parts := []string{stylePrefix}
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", label, value))
		}
	}
	add("Scene", p.Scene)
	add("Style", p.Style)
	add("Characters", p.Characters)
	add("Composition", p.Composition)
	add("Technical", p.Technical)
	return strings.Join(parts, " ")
}
