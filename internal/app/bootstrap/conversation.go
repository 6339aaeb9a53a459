package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/consult-funnel/internal/config"
	"github.com/wolfman30/consult-funnel/internal/conversation"
	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

// ProviderRules selects the local template engine instead of a hosted model.
const ProviderRules = "rules"

// BuildLLMClient creates the client for one provider name. The rules
// provider has no client and returns (nil, nil).
func BuildLLMClient(ctx context.Context, provider string, cfg *appconfig.Config, awsCfg *aws.Config) (conversation.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	var (
		client conversation.LLMClient
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderRules:
		return nil, nil
	case "gemini":
		var c *conversation.GeminiLLMClient
		if c, err = conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel); err == nil {
			client = c
		}
	case "bedrock":
		switch {
		case awsCfg == nil:
			err = fmt.Errorf("bootstrap: bedrock requires aws config")
		case strings.TrimSpace(cfg.BedrockModelID) == "":
			err = fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required")
		default:
			client = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
		}
	case "openai":
		var c *conversation.OpenAILLMClient
		if c, err = conversation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel); err == nil {
			client = c
		}
	case "anthropic":
		var c *conversation.AnthropicLLMClient
		if c, err = conversation.NewAnthropicLLMClient(cfg.AnthropicAPIKey, cfg.AnthropicModel); err == nil {
			client = c
		}
	default:
		err = fmt.Errorf("bootstrap: unknown llm provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// BuildGenerator wires the reply generator from LLM_PROVIDER and
// LLM_FALLBACK_PROVIDER. A misconfigured hosted provider degrades to the
// rules engine so the funnel keeps answering.
func BuildGenerator(ctx context.Context, cfg *appconfig.Config, scenario *dialogue.Scenario, awsCfg *aws.Config, logger *logging.Logger) (dialogue.Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if scenario == nil {
		return nil, fmt.Errorf("bootstrap: scenario is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, err := BuildLLMClient(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		logger.Warn("primary llm provider unavailable; using rules generator", "provider", cfg.LLMProvider, "error", err)
		primary = nil
	}
	if primary == nil {
		logger.Info("using rules generator")
		return conversation.NewRulesGenerator(scenario), nil
	}

	client := primary
	if fb := strings.TrimSpace(cfg.LLMFallbackProvider); fb != "" && fb != cfg.LLMProvider {
		secondary, err := BuildLLMClient(ctx, fb, cfg, awsCfg)
		switch {
		case err != nil:
			logger.Warn("fallback llm provider unavailable", "provider", fb, "error", err)
		case secondary != nil:
			client = conversation.NewFallbackLLMClient(primary, secondary, logger)
		}
	}

	logger.Info("using llm generator", "provider", cfg.LLMProvider, "fallback", cfg.LLMFallbackProvider)
	return conversation.NewLLMGenerator(client, scenario, logger,
		conversation.WithMaxTokens(int32(cfg.LLMMaxTokens)),
		conversation.WithTemperature(float32(cfg.LLMTemperature)),
		conversation.WithHistoryLimit(cfg.LLMHistoryLimit),
	), nil
}
