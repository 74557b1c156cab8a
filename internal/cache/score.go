package cache

import (
	"fmt"
	"strings"

	"eval-cache/internal/domain/models"
)

// DefaultScorePath 分数在结果中的默认位置，对应 response.Score
const DefaultScorePath = "Score"

// ExtractScore 按点分路径从结果中取出分数。
// 字段缺失或不是数值属于调用方输入错误。
func ExtractScore(response models.ResponsePayload, path string) (float64, error) {
	if path == "" {
		path = DefaultScorePath
	}

	var current any = map[string]any(response)
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("%w: response.%s: %q is not an object", models.ErrMalformedInput, path, segment)
		}
		value, ok := obj[segment]
		if !ok {
			return 0, fmt.Errorf("%w: response.%s is required", models.ErrMalformedInput, path)
		}
		current = value
	}

	score, ok := models.Float64(current)
	if !ok {
		return 0, fmt.Errorf("%w: response.%s must be a number, got %T", models.ErrMalformedInput, path, current)
	}
	return score, nil
}
