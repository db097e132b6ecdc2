package emotion

import (
	"context"
	"errors"
	"fmt"
	"log"

	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

var (
	// ErrMissingCredentials 表示未配置 API Key，调用时按鉴权错误处理。
	ErrMissingCredentials = errors.New("emotion: api key not configured")
	// ErrUnsupportedChannel 表示后端不支持该输入通道。
	ErrUnsupportedChannel = errors.New("emotion: channel not supported by backend")
	// ErrNoTransport 表示没有为通道配置后端。
	ErrNoTransport = errors.New("emotion: no transport for channel")
)

// Transport 把一次请求发送到情绪分析后端并返回原始响应体。
type Transport interface {
	Send(ctx context.Context, req emotionmodel.Request) ([]byte, error)
}

// StatusError 表示后端返回了非 2xx 状态码。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("emotion: upstream status %d: %s", e.Code, e.Body)
}

// Client 把请求路由到对应通道的后端，并将所有失败折叠为带类型的 Outcome。
type Client struct {
	text  Transport
	voice Transport
}

// NewClient 创建客户端。voice 为空时语音请求返回网络错误。
func NewClient(text, voice Transport) *Client {
	return &Client{text: text, voice: voice}
}

// Analyze 执行一次分析。不会重试，也不会把错误抛出边界之外。
func (c *Client) Analyze(ctx context.Context, req emotionmodel.Request) emotionmodel.Outcome {
	if req.Empty() {
		return emotionmodel.Failure(emotionmodel.KindInvalidInput, fmt.Errorf("empty %s payload", req.Channel)).Tag(req)
	}

	transport := c.text
	if req.Channel == emotionmodel.ChannelVoice {
		transport = c.voice
	}
	if transport == nil {
		return emotionmodel.Failure(emotionmodel.KindNetwork, ErrNoTransport).Tag(req)
	}

	body, err := transport.Send(ctx, req)
	if err != nil {
		outcome := classify(err)
		log.Printf("[emotion] %s request seq=%d failed: %v", req.Channel, req.Seq, err)
		return outcome.Tag(req)
	}

	label, err := ParseResponse(body)
	if err != nil {
		log.Printf("[emotion] %s response seq=%d unparseable: %v", req.Channel, req.Seq, err)
		return emotionmodel.Failure(emotionmodel.KindParse, err).Tag(req)
	}

	return emotionmodel.Success(label).Tag(req)
}

func classify(err error) emotionmodel.Outcome {
	var analysisErr *emotionmodel.AnalysisError
	if errors.As(err, &analysisErr) {
		return emotionmodel.Outcome{Err: analysisErr}
	}

	if errors.Is(err, ErrMissingCredentials) {
		return emotionmodel.Failure(emotionmodel.KindAuth, err)
	}
	if errors.Is(err, ErrUnsupportedChannel) {
		return emotionmodel.Failure(emotionmodel.KindInvalidInput, err)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case 401, 403:
			return emotionmodel.Failure(emotionmodel.KindAuth, err)
		}
	}

	return emotionmodel.Failure(emotionmodel.KindNetwork, err)
}
