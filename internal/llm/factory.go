package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type ProviderOptions struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Logger      *zap.Logger
}

func NewProvider(ctx context.Context, opts ProviderOptions) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "gemini"
	}

	switch provider {
	case "gemini":
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, fmt.Errorf("gemini api key is required")
		}
		return NewGeminiProvider(ctx, opts.APIKey, opts.Model, opts.BaseURL, float32(opts.Temperature), opts.Logger)
	case "openai":
		return NewOpenAIProvider(opts.APIKey, opts.Model, opts.BaseURL, opts.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}
}
