package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewGemini_RequiresAPIKey(t *testing.T) {
	_, err := NewGemini(context.Background(), Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewGemini_Defaults(t *testing.T) {
	g, err := NewGemini(context.Background(), Config{APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash", g.model)
	assert.Equal(t, 4096, g.maxTokens)
}

func TestNewGemini_CustomSettings(t *testing.T) {
	g, err := NewGemini(context.Background(), Config{
		APIKey:      "test-key",
		Model:       "gemini-2.5-pro",
		MaxTokens:   1024,
		Temperature: 0.2,
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", g.model)
	assert.Equal(t, 1024, g.maxTokens)
	assert.Equal(t, 0.2, g.temperature)
}
