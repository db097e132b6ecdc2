package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// 情绪分析后端
const (
	BackendHume    = "hume"
	BackendLLM     = "llm"
	BackendKeyword = "keyword"
)

const (
	defaultEmotionEndpoint  = "https://api.hume.ai/v2/emotions"
	defaultPollInterval     = 10 * time.Second
	defaultEmotionTimeout   = 15 * time.Second
	defaultLevelRefresh     = 50 * time.Millisecond
	defaultSessionRetention = 30 * time.Minute
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Emotion EmotionConfig
	AI      AIConfig
	Audio   AudioConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	emotion, err := loadEmotionConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	audio, err := loadAudioConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Emotion: emotion, AI: ai, Audio: audio}, nil
}

// ParseBackend 规范化情绪分析后端名称，未知名称返回错误。
func ParseBackend(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	switch backend {
	case BackendHume, BackendLLM, BackendKeyword:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown emotion backend %q (want %s, %s or %s)", name, BackendHume, BackendLLM, BackendKeyword)
	}
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// SessionRetention 是结束后的会话保留时长，过期后连同反馈一起清理。
	SessionRetention time.Duration
}

// loadServerConfig 解析服务器监听地址与会话保留时长。
func loadServerConfig() (ServerConfig, error) {
	retention, err := parseDurationEnv("SESSION_RETENTION", defaultSessionRetention)
	if err != nil {
		return ServerConfig{}, err
	}
	if retention <= 0 {
		return ServerConfig{}, fmt.Errorf("invalid SESSION_RETENTION value %s: must be positive", retention)
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, SessionRetention: retention}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, SessionRetention: retention}, nil
}

// EmotionConfig 描述情绪分析接口配置。凭证缺失不会导致启动失败，首次调用时返回鉴权错误。
type EmotionConfig struct {
	APIKey   string
	ConfigID string
	// Endpoint 可以是第三方接口，也可以是本地 /api/emotion 代理。
	Endpoint string
	// ViaProxy 为 true 时凭证由代理持有，客户端不再要求 APIKey。
	ViaProxy     bool
	UpstreamURL  string
	Backend      string
	PollInterval time.Duration
	Timeout      time.Duration
}

// HasCredentials 表示是否配置了 API Key。
func (c EmotionConfig) HasCredentials() bool {
	return c.APIKey != ""
}

func loadEmotionConfig() (EmotionConfig, error) {
	pollInterval, err := parseDurationEnv("EMOTION_POLL_INTERVAL", defaultPollInterval)
	if err != nil {
		return EmotionConfig{}, err
	}
	if pollInterval <= 0 {
		return EmotionConfig{}, fmt.Errorf("invalid EMOTION_POLL_INTERVAL value %s: must be positive", pollInterval)
	}

	timeout, err := parseDurationEnv("EMOTION_TIMEOUT", defaultEmotionTimeout)
	if err != nil {
		return EmotionConfig{}, err
	}

	viaProxy, err := parseBoolEnv("EMOTION_VIA_PROXY", false)
	if err != nil {
		return EmotionConfig{}, err
	}

	backend, err := ParseBackend(getEnvOrDefault("EMOTION_BACKEND", BackendHume))
	if err != nil {
		return EmotionConfig{}, fmt.Errorf("invalid EMOTION_BACKEND: %w", err)
	}

	// 兼容前端时代的 VITE_ 前缀变量
	apiKey := firstEnv("HUME_API_KEY", "VITE_HUME_API_KEY")
	configID := firstEnv("HUME_CONFIG_ID", "VITE_HUME_CONFIG_ID")

	return EmotionConfig{
		APIKey:       apiKey,
		ConfigID:     configID,
		Endpoint:     getEnvOrDefault("EMOTION_ENDPOINT", defaultEmotionEndpoint),
		ViaProxy:     viaProxy,
		UpstreamURL:  getEnvOrDefault("EMOTION_UPSTREAM_URL", defaultEmotionEndpoint),
		Backend:      backend,
		PollInterval: pollInterval,
		Timeout:      timeout,
	}, nil
}

// AIConfig 描述大模型相关配置，仅在 EMOTION_BACKEND=llm 时使用。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// AudioConfig 描述本地录音设备参数。
type AudioConfig struct {
	SampleRate   int
	Channels     int
	LevelRefresh time.Duration
}

func loadAudioConfig() (AudioConfig, error) {
	sampleRate := 16000 // 默认16kHz
	if override, err := parseOptionalIntEnv("AUDIO_SAMPLE_RATE"); err != nil {
		return AudioConfig{}, err
	} else if override != nil {
		sampleRate = *override
	}

	channels := 1
	if override, err := parseOptionalIntEnv("AUDIO_CHANNELS"); err != nil {
		return AudioConfig{}, err
	} else if override != nil {
		channels = *override
	}

	if sampleRate <= 0 || channels <= 0 {
		return AudioConfig{}, fmt.Errorf("invalid audio format: rate=%d channels=%d", sampleRate, channels)
	}

	refresh, err := parseDurationEnv("AUDIO_LEVEL_REFRESH", defaultLevelRefresh)
	if err != nil {
		return AudioConfig{}, err
	}

	return AudioConfig{SampleRate: sampleRate, Channels: channels, LevelRefresh: refresh}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 同时接受 "10s" 形式和纯数字毫秒。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
