package emotion

import (
	"context"
	"fmt"
	"log"

	"github.com/zhouzirui/date-rehearsal/backend/internal/config"
)

// NewClientFromConfig 按 EMOTION_BACKEND 组装客户端。语音请求始终走 HTTP 后端。
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	httpTransport := NewHTTPTransport(HTTPConfig{
		Endpoint:  cfg.Emotion.Endpoint,
		APIKey:    cfg.Emotion.APIKey,
		ConfigID:  cfg.Emotion.ConfigID,
		Anonymous: cfg.Emotion.ViaProxy,
		Timeout:   cfg.Emotion.Timeout,
	})

	switch cfg.Emotion.Backend {
	case config.BackendKeyword:
		log.Printf("[emotion] text backend: keyword heuristic")
		return NewClient(KeywordTransport{}, httpTransport), nil
	case config.BackendLLM:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("init chat model: %w", err)
		}
		llm, err := NewLLMTransport(ctx, chatModel)
		if err != nil {
			return nil, err
		}
		log.Printf("[emotion] text backend: llm (%s)", cfg.AI.Model)
		return NewClient(llm, httpTransport), nil
	default:
		if !cfg.Emotion.HasCredentials() && !cfg.Emotion.ViaProxy {
			log.Printf("[emotion] HUME_API_KEY missing, analysis requests will fail with %s", "auth_error")
		}
		return NewClient(httpTransport, httpTransport), nil
	}
}
