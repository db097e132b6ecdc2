package emotion

import (
	"context"
	"encoding/json"

	analysis "github.com/zhouzirui/date-rehearsal/backend/internal/analysis/emotion"
	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

// KeywordTransport 离线后端，用关键词启发式打分。只支持文本。
type KeywordTransport struct{}

// Send 生成平铺形状的响应体。
func (KeywordTransport) Send(ctx context.Context, req emotionmodel.Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Channel != emotionmodel.ChannelText {
		return nil, ErrUnsupportedChannel
	}
	return json.Marshal(struct {
		Emotions []analysis.Score `json:"emotions"`
	}{Emotions: analysis.ScoreText(req.Text)})
}
