package mongo

import (
	"encoding/json"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"eval-cache/internal/domain/models"
)

// toBSON 把规范化值转换为 BSON。嵌套对象按键排序写成 bson.D，
// MongoDB 的内嵌文档相等比较依赖字段顺序，写入与查询必须使用相同顺序。
func toBSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return sortedDoc(t)
	case models.CacheKey:
		return sortedDoc(t)
	case models.ResponsePayload:
		return sortedDoc(t)
	case []any:
		arr := make(bson.A, len(t))
		for i, item := range t {
			arr[i] = toBSON(item)
		}
		return arr
	case json.Number:
		return bigInteger(t)
	default:
		return v
	}
}

// bigInteger 超出 int64 的整数写成 Decimal128 以保持精确比较，
// 有效位数超过 Decimal128 上限时退化为 double
func bigInteger(n json.Number) any {
	if d, err := bson.ParseDecimal128(n.String()); err == nil {
		return d
	}
	f, _ := n.Float64()
	return f
}

func sortedDoc(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := make(bson.D, 0, len(m))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: toBSON(m[k])})
	}
	return doc
}

// fromBSON 把解码得到的 BSON 值还原为规范化形式：对象为 map[string]any，数组为 []any，
// 整数为 int64，Decimal128 还原为十进制 json.Number
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = fromBSON(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, item := range t {
			m[k] = fromBSON(item)
		}
		return m
	case bson.A:
		return fromArray(t)
	case []any:
		return fromArray(t)
	case int32:
		return int64(t)
	case bson.Decimal128:
		return fromDecimal(t)
	default:
		return v
	}
}

func fromDecimal(d bson.Decimal128) any {
	coef, exp, err := d.BigInt()
	if err != nil || exp < 0 {
		f, _ := strconv.ParseFloat(d.String(), 64)
		return f
	}
	if exp > 0 {
		coef.Mul(coef, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
	}
	if coef.IsInt64() {
		return coef.Int64()
	}
	return json.Number(coef.String())
}

func fromArray(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = fromBSON(item)
	}
	return out
}

func fromDoc(d bson.D) map[string]any {
	return fromBSON(d).(map[string]any)
}

// buildFilter 构造键匹配过滤条件。
// 普通字段使用 request.<field> 点路径以便走索引，并排除数组，避免 MongoDB 的数组元素匹配语义；
// 数组值和含有 "." 或以 "$" 开头的字段名改用 $getField 表达式做整体比较。
func buildFilter(key models.CacheKey) bson.D {
	fields := key.Fields()
	if len(fields) == 0 {
		return bson.D{}
	}

	conds := make(bson.A, 0, len(fields))
	for _, field := range fields {
		value := key[field]
		if _, isArray := value.([]any); isArray || !plainField(field) {
			conds = append(conds, exprEquals(field, value))
			continue
		}
		conds = append(conds, bson.D{{Key: "request." + field, Value: bson.D{
			{Key: "$eq", Value: toBSON(value)},
			{Key: "$not", Value: bson.D{{Key: "$type", Value: "array"}}},
		}}})
	}
	return bson.D{{Key: "$and", Value: conds}}
}

func exprEquals(field string, value any) bson.D {
	getField := bson.D{{Key: "$getField", Value: bson.D{
		{Key: "field", Value: bson.D{{Key: "$literal", Value: field}}},
		{Key: "input", Value: "$request"},
	}}}
	return bson.D{{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{
		getField,
		bson.D{{Key: "$literal", Value: toBSON(value)}},
	}}}}}
}

func plainField(field string) bool {
	return !strings.Contains(field, ".") && !strings.HasPrefix(field, "$")
}
