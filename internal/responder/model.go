package responder

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"schoolchat/internal/config"
)

// NewChatModel constructs the provider chat model named in config.
func NewChatModel(ctx context.Context, provider string, cfg config.ProviderConfig, modelName string) (model.ToolCallingChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s has no api key configured", provider)
	}
	if modelName == "" {
		modelName = cfg.Model
	}

	switch provider {
	case "openai":
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   modelName,
			APIKey:  cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai model: %w", err)
		}
		return chatModel, nil
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 2000,
		})
		if err != nil {
			return nil, fmt.Errorf("init claude model: %w", err)
		}
		return chatModel, nil
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini model: %w", err)
		}
		return chatModel, nil
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}
