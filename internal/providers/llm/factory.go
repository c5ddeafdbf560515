package llm

import (
	"context"
	"fmt"

	"github.com/yoockh/basketvoice/config"
)

// NewProvider builds a provider from its config entry.
func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "anthropic":
		return NewAnthropic(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "vertex":
		return NewVertexGemini(ctx, cfg.ProjectID, cfg.Location, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
