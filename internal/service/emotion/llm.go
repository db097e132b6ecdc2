package emotion

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

// LLMTransport 使用大模型对文本打分，输出与平铺响应同形的 JSON。只支持文本。
type LLMTransport struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMTransport 编译分类链路。chatModel 可重用现有的大模型实例。
func NewLLMTransport(ctx context.Context, chatModel model.ChatModel) (*LLMTransport, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}
	return &LLMTransport{classifier: runnable}, nil
}

// Send 调用模型并截取回复中的 JSON 对象。
func (t *LLMTransport) Send(ctx context.Context, req emotionmodel.Request) ([]byte, error) {
	if req.Channel != emotionmodel.ChannelText {
		return nil, ErrUnsupportedChannel
	}

	msg, err := t.classifier.Invoke(ctx, map[string]any{
		"text": strings.TrimSpace(req.Text),
	})
	if err != nil {
		return nil, fmt.Errorf("classifier invoke: %w", err)
	}
	if msg == nil {
		return nil, nil
	}
	return extractJSONObject(msg.Content), nil
}

// extractJSONObject 去掉模型回复里 JSON 之外的文本；找不到时原样返回交由解析器报错。
func extractJSONObject(content string) []byte {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return []byte(trimmed)
	}
	return []byte(trimmed[start : end+1])
}

// 提示词中不能出现花括号，FString 会把它们当作占位符。
const classifierSystemPrompt = "You rate the emotional tone of a single chat message written by someone rehearsing a first date. " +
	"Reply with one JSON object only. It has a single key named emotions whose value is an array; " +
	"each element is an object with a string field name (one lower-case emotion word such as happy, sad, angry, excited, nervous, calm or neutral) " +
	"and a number field score between 0 and 1. Include every emotion you detect. Do not output any other text."

const classifierUserPrompt = "Message:\n{text}"
