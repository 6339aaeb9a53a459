package bootstrap

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/consult-funnel/internal/config"
	"github.com/wolfman30/consult-funnel/internal/conversation"
	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

func TestBuildGeneratorRequiresConfig(t *testing.T) {
	_, err := BuildGenerator(context.Background(), nil, dialogue.MustDefaultScenario(), nil, nil)
	require.Error(t, err)
}

func TestBuildGeneratorRulesProvider(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "rules"}

	gen, err := BuildGenerator(context.Background(), cfg, dialogue.MustDefaultScenario(), nil, logging.New("error"))
	require.NoError(t, err)
	_, ok := gen.(*conversation.RulesGenerator)
	assert.True(t, ok, "expected rules generator, got %T", gen)
}

func TestBuildGeneratorMisconfiguredProviderDegradesToRules(t *testing.T) {
	// Gemini without a key cannot be built.
	cfg := &appconfig.Config{LLMProvider: "gemini"}

	gen, err := BuildGenerator(context.Background(), cfg, dialogue.MustDefaultScenario(), nil, logging.New("error"))
	require.NoError(t, err)
	_, ok := gen.(*conversation.RulesGenerator)
	assert.True(t, ok, "expected rules generator, got %T", gen)
}

func TestBuildGeneratorHostedProvider(t *testing.T) {
	cfg := &appconfig.Config{
		LLMProvider:         "openai",
		LLMFallbackProvider: "anthropic",
		OpenAIAPIKey:        "sk-test",
		OpenAIModel:         "gpt-4o-mini",
		AnthropicAPIKey:     "ak-test",
		AnthropicModel:      "claude-3-5-haiku-latest",
		LLMMaxTokens:        256,
		LLMTemperature:      0.5,
		LLMHistoryLimit:     10,
	}

	gen, err := BuildGenerator(context.Background(), cfg, dialogue.MustDefaultScenario(), nil, logging.New("error"))
	require.NoError(t, err)
	_, ok := gen.(*conversation.LLMGenerator)
	assert.True(t, ok, "expected llm generator, got %T", gen)
}

func TestBuildLLMClient(t *testing.T) {
	ctx := context.Background()
	cfg := &appconfig.Config{
		OpenAIAPIKey:    "sk-test",
		OpenAIModel:     "gpt-4o-mini",
		AnthropicAPIKey: "ak-test",
		AnthropicModel:  "claude-3-5-haiku-latest",
	}

	client, err := BuildLLMClient(ctx, "rules", cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = BuildLLMClient(ctx, "bedrock", cfg, nil)
	assert.Error(t, err, "bedrock needs aws config")

	_, err = BuildLLMClient(ctx, "bedrock", cfg, &aws.Config{Region: "us-east-1"})
	assert.Error(t, err, "bedrock needs a model id")

	cfg.BedrockModelID = "anthropic.claude-3-haiku"
	client, err = BuildLLMClient(ctx, "bedrock", cfg, &aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, &conversation.BedrockLLMClient{}, client)

	client, err = BuildLLMClient(ctx, "OpenAI", cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &conversation.OpenAILLMClient{}, client)

	client, err = BuildLLMClient(ctx, "anthropic", cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &conversation.AnthropicLLMClient{}, client)

	client, err = BuildLLMClient(ctx, "gemini", cfg, nil)
	require.Error(t, err)
	assert.Nil(t, client, "a failed build must not return a typed nil")

	_, err = BuildLLMClient(ctx, "watson", cfg, nil)
	assert.Error(t, err)
}
