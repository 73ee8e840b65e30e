package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/sdr-ai-platform/internal/config"
	"github.com/wolfman30/sdr-ai-platform/internal/conversation"
	"github.com/wolfman30/sdr-ai-platform/internal/llm"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const (
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
	ProviderNone    = "none"
)

// BuildLLMClient wires the configured text-understanding provider, with the
// other configured provider as fallback. It returns nil when no provider can
// be built; extraction then runs on keyword rules only.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	var order []string
	switch provider {
	case ProviderNone:
		logger.Info("llm disabled; qualification uses keyword rules")
		return nil, nil
	case ProviderGemini, "":
		order = []string{ProviderGemini, ProviderBedrock}
	case ProviderBedrock:
		order = []string{ProviderBedrock, ProviderGemini}
	case ProviderOpenAI:
		order = []string{ProviderOpenAI, ProviderGemini}
	default:
		return nil, fmt.Errorf("bootstrap: unknown llm provider %q", cfg.LLMProvider)
	}

	var clients []llm.Client
	var names []string
	for _, name := range order {
		client, err := buildProvider(ctx, name, cfg, awsCfg)
		if err != nil {
			logger.Warn("llm provider not available", "provider", name, "error", err)
			continue
		}
		clients = append(clients, client)
		names = append(names, name)
	}

	switch len(clients) {
	case 0:
		logger.Warn("no llm provider configured; qualification uses keyword rules", "provider", provider)
		return nil, nil
	case 1:
		logger.Info("llm provider configured", "primary", names[0])
		return clients[0], nil
	default:
		logger.Info("llm provider configured", "primary", names[0], "fallback", names[1])
		return llm.NewFallbackClient(clients[0], clients[1], logger), nil
	}
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg *aws.Config) (llm.Client, error) {
	switch name {
	case ProviderGemini:
		return llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case ProviderOpenAI:
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	case ProviderBedrock:
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("BEDROCK_MODEL_ID missing")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("aws config not loaded")
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID), nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// ModelFor returns the model name requests should carry for the primary
// provider. Empty means the client default.
func ModelFor(cfg *appconfig.Config) string {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case ProviderBedrock:
		return cfg.BedrockModelID
	case ProviderOpenAI:
		return cfg.OpenAIModel
	default:
		return ""
	}
}

// BuildComposer lets the model phrase replies when one is configured and
// falls back to the fixed templates otherwise.
func BuildComposer(client llm.Client, model string) conversation.Composer {
	if client == nil {
		return conversation.TemplateComposer{}
	}
	return conversation.NewLLMComposer(client, model)
}
