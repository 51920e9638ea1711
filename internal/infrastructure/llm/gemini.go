package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/shoplens/backend/internal/domain"
)

// Config holds Gemini client settings
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Gemini implements domain.TextGenerator on top of Google's Gemini API
type Gemini struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

// NewGemini creates a Gemini-backed text generator
func NewGemini(ctx context.Context, cfg Config, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// Complete sends a prompt to Gemini and returns the generated text.
// Per-request MaxTokens/Temperature override the client defaults when set.
func (g *Gemini) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := g.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     genai.Ptr(float32(temperature)),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		g.logger.Warn("gemini generation failed", zap.String("model", g.model), zap.Error(err))
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailure, err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrGenerationFailure)
	}

	return text, nil
}
