package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Load must hand the documented defaults through to the typed structs; a
// default that decodes to a zero value silently disables its feature.
func TestLoad_DefaultsReachTypedConfig(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Chat.ContextWindow)
	assert.Equal(t, 0.8, cfg.Chat.SimilarityThreshold)
	assert.Equal(t, 0.6, cfg.Chat.IntentThreshold)
	assert.Equal(t, 300*time.Second, cfg.Chat.SlotCacheMaxAge)
	assert.Equal(t, 2000, cfg.Chat.MaxMessageLength)

	assert.Equal(t, "gpt-4o-mini", cfg.Inference.CompletionModel)
	assert.Equal(t, "text-embedding-3-small", cfg.Inference.EmbeddingModel)
	assert.Equal(t, 1024, cfg.Inference.EmbeddingDims)
	assert.Equal(t, 1024, cfg.Inference.MaxTokens)
	assert.Equal(t, float32(0.2), cfg.Inference.Temperature)
	assert.Equal(t, 5, cfg.Inference.MaxRetries)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOOKLINE_PORT", "9090")
	t.Setenv("BOOKLINE_CHANNEL_TOKEN", "secret-token")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret-token", cfg.Server.ChannelToken)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "sk-test", cfg.Inference.APIKey)
}
