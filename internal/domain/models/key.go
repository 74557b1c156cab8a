package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// NormalizeKey 将边界层传入的请求规范化为 CacheKey。
// 保存和查找必须使用同一规范化，否则逻辑上相同的键无法匹配：
// 整数值统一为 int64（超出范围的十进制整数保留为 json.Number），
// 其余数值为 float64；null 视为未设置并丢弃，嵌套对象递归处理。
func NormalizeKey(raw map[string]any) (CacheKey, error) {
	obj, err := normalizeObject(raw, "request")
	if err != nil {
		return nil, err
	}
	return CacheKey(obj), nil
}

// NormalizeResponse 以与键相同的规则规范化计算结果
func NormalizeResponse(raw map[string]any) (ResponsePayload, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: response is required", ErrMalformedInput)
	}
	obj, err := normalizeObject(raw, "response")
	if err != nil {
		return nil, err
	}
	return ResponsePayload(obj), nil
}

// DecodeObject 以 UseNumber 方式解码 JSON 对象并规范化，整数不经过 float64
func DecodeObject(data []byte, path string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedInput, path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s must be a JSON object", ErrMalformedInput, path)
	}
	return normalizeObject(raw, path)
}

// Float64 返回规范化数值的 float64 近似值
func Float64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Fields 返回按字典序排列的字段名，保证各存储构造谓词的顺序一致。
func (k CacheKey) Fields() []string {
	fields := make([]string, 0, len(k))
	for f := range k {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Matches 报告 stored 是否满足 k 的全部约束字段
func (k CacheKey) Matches(stored CacheKey) bool {
	for field, want := range k {
		got, ok := stored[field]
		if !ok {
			return false
		}
		if !ValuesEqual(want, got) {
			return false
		}
	}
	return true
}

// CanonicalJSON 返回规范化值的确定性 JSON 编码。
// encoding/json 对 map 键排序，因此逻辑相等的值得到相同的字符串。
func CanonicalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return string(data), nil
}

// ValuesEqual 比较两个规范化后的值
func ValuesEqual(a, b any) bool {
	ca, err := CanonicalJSON(a)
	if err != nil {
		return false
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		return false
	}
	return ca == cb
}

func normalizeObject(raw map[string]any, path string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for field, value := range raw {
		if field == "" {
			return nil, fmt.Errorf("%w: %s contains an empty field name", ErrMalformedInput, path)
		}
		v, err := normalizeValue(value, path+"."+field)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		out[field] = v
	}
	return out, nil
}

func normalizeValue(value any, path string) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string, bool:
		return v, nil
	case float64:
		return canonicalFloat(v, path)
	case float32:
		return canonicalFloat(float64(v), path)
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return canonicalUint(uint64(v)), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return canonicalUint(v), nil
	case json.Number:
		return canonicalNumber(v, path)
	case map[string]any:
		return normalizeObject(v, path)
	case CacheKey:
		return normalizeObject(v, path)
	case ResponsePayload:
		return normalizeObject(v, path)
	case []any:
		return normalizeArray(v, path)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return normalizeArray(items, path)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: %s has non-string keys", ErrMalformedInput, path)
		}
		obj := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			obj[iter.Key().String()] = iter.Value().Interface()
		}
		return normalizeObject(obj, path)
	}
	return nil, fmt.Errorf("%w: %s has unsupported type %T", ErrMalformedInput, path, value)
}

func normalizeArray(items []any, path string) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		v, err := normalizeValue(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// canonicalFloat 整数值转为 int64，-0 归一为 0；超出 int64 的值与非整数保留为 float64
func canonicalFloat(f float64, path string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s must be a finite number", ErrMalformedInput, path)
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f), nil
	}
	return f, nil
}

func canonicalUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return json.Number(strconv.FormatUint(u, 10))
}

// canonicalNumber 纯十进制整数按原值精确保存，带小数点或指数的数值按 float64 处理
func canonicalNumber(n json.Number, path string) (any, error) {
	text := n.String()
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
		if b, ok := new(big.Int).SetString(text, 10); ok {
			if b.IsInt64() {
				return b.Int64(), nil
			}
			return json.Number(b.String()), nil
		}
		return nil, fmt.Errorf("%w: %s is not a valid number", ErrMalformedInput, path)
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid number", ErrMalformedInput, path)
	}
	return canonicalFloat(f, path)
}

func cloneObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
