package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

const maxResponseBytes = 1 << 20

// HTTPConfig 描述远程情绪分析接口。
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	ConfigID string
	// Anonymous 为 true 时允许不带凭证请求（例如经由本地代理转发）。
	Anonymous bool
	Timeout   time.Duration
}

// HTTPTransport 通过 HTTP 调用情绪分析接口，文本走 JSON，语音走 multipart。
type HTTPTransport struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPTransport 创建 HTTP 后端。
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPTransport{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Send 发送一次请求，请求体每次调用只构建一次。
func (t *HTTPTransport) Send(ctx context.Context, req emotionmodel.Request) ([]byte, error) {
	if t.cfg.APIKey == "" && !t.cfg.Anonymous {
		return nil, ErrMissingCredentials
	}

	target, err := t.buildURL()
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodePayload(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("build emotion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if t.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
		httpReq.Header.Set("X-Hume-Api-Key", t.cfg.APIKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("emotion request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read emotion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(payload)}
	}
	return payload, nil
}

func (t *HTTPTransport) buildURL() (string, error) {
	parsed, err := url.Parse(t.cfg.Endpoint)
	if err != nil || parsed.Scheme == "" {
		return "", fmt.Errorf("invalid emotion endpoint %q", t.cfg.Endpoint)
	}
	if t.cfg.ConfigID != "" {
		query := parsed.Query()
		query.Set("configId", t.cfg.ConfigID)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func encodePayload(req emotionmodel.Request) (io.Reader, string, error) {
	if req.Channel != emotionmodel.ChannelVoice {
		data, err := json.Marshal(map[string]string{"text": req.Text})
		if err != nil {
			return nil, "", fmt.Errorf("encode text payload: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}

	format := strings.TrimSpace(req.AudioFormat)
	if format == "" {
		format = "wav"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", "recording."+format)
	if err != nil {
		return nil, "", fmt.Errorf("encode audio payload: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, "", fmt.Errorf("encode audio payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("encode audio payload: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

const snippetLimit = 200

// snippet trims an upstream body for logs and errors, cutting on a rune boundary.
func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= snippetLimit {
		return text
	}
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
