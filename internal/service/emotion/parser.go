package emotion

import (
	"errors"

	"github.com/buger/jsonparser"

	analysis "github.com/zhouzirui/date-rehearsal/backend/internal/analysis/emotion"
	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

// ErrUnrecognizedShape 表示响应中找不到任何可用的情绪列表。
var ErrUnrecognizedShape = errors.New("emotion: unrecognized response shape")

var errStopIteration = errors.New("stop")

// 依次尝试的情绪列表位置
var emotionPaths = [][]string{
	{"emotions"},
	{"predictions", "[0]", "emotions"},
}

// 批量接口在 models 之前的路径，顶层可能是数组也可能是对象。
var batchModelPaths = [][]string{
	{"[0]", "results", "predictions", "[0]", "models"},
	{"results", "predictions", "[0]", "models"},
}

var groupedEmotionPath = []string{"grouped_predictions", "[0]", "predictions", "[0]", "emotions"}

// ParseResponse 从后端响应中选出得分最高的情绪。
func ParseResponse(body []byte) (emotionmodel.Label, error) {
	for _, path := range emotionPaths {
		if label, ok := dominantAt(body, path...); ok {
			return label, nil
		}
	}

	for _, path := range batchModelPaths {
		models, dataType, _, err := jsonparser.Get(body, path...)
		if err != nil || dataType != jsonparser.Object {
			continue
		}
		if label, ok := firstModelDominant(models); ok {
			return label, nil
		}
	}

	return "", ErrUnrecognizedShape
}

// firstModelDominant 只看第一个模型。
func firstModelDominant(models []byte) (emotionmodel.Label, bool) {
	var (
		label emotionmodel.Label
		found bool
	)
	_ = jsonparser.ObjectEach(models, func(_ []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		if dataType == jsonparser.Object {
			label, found = dominantAt(value, groupedEmotionPath...)
		}
		return errStopIteration
	})
	return label, found
}

func dominantAt(data []byte, path ...string) (emotionmodel.Label, bool) {
	list, dataType, _, err := jsonparser.Get(data, path...)
	if err != nil || dataType != jsonparser.Array {
		return "", false
	}

	var scores []analysis.Score
	_, err = jsonparser.ArrayEach(list, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			return
		}
		name, err := jsonparser.GetString(value, "name")
		if err != nil {
			return
		}
		score, err := jsonparser.GetFloat(value, "score")
		if err != nil {
			return
		}
		label := emotionmodel.NormalizeLabel(name)
		if label == "" {
			return
		}
		scores = append(scores, analysis.Score{Name: string(label), Score: score})
	})
	if err != nil {
		return "", false
	}

	top, ok := analysis.Dominant(scores)
	if !ok {
		return "", false
	}
	return emotionmodel.Label(top.Name), true
}
