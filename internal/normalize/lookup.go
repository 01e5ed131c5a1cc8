// Package normalize maps heterogeneous indexer responses onto pkg/models.
//
// Indexer versions disagree on field names and units. Every logical field is
// resolved from an ordered list of candidate names, canonical name first, and
// the first candidate that is present (non-null) wins. Missing or malformed
// fields resolve to the zero value; nothing in this package returns an error
// for bad data.
package normalize

import (
	"math"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cast"
)

// Raw 未解析的JSON对象
type Raw = map[string]interface{}

const (
	// MillisecondThreshold 大于该值的时间戳按毫秒处理
	MillisecondThreshold = 1e10

	// BaseUnitThreshold 不小于该值的金额视为已是基础单位
	BaseUnitThreshold = 1e12

	// maxDisplayAmount 放大到基础单位后仍在int64范围内的最大展示单位金额
	maxDisplayAmount = math.MaxInt64 / btcutil.SatoshiPerBitcoin
)

// First 返回第一个存在且非null的候选字段
func First(raw Raw, names ...string) (interface{}, bool) {
	if raw == nil {
		return nil, false
	}
	for _, name := range names {
		if v, ok := raw[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Has 任一候选字段存在
func Has(raw Raw, names ...string) bool {
	_, ok := First(raw, names...)
	return ok
}

// String 字符串字段
func String(raw Raw, names ...string) string {
	v, ok := First(raw, names...)
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Float64 浮点字段，非有限值视为0
func Float64(raw Raw, names ...string) float64 {
	v, ok := First(raw, names...)
	if !ok {
		return 0
	}
	return toFloat(v)
}

// Int64 整数字段，小数向下取整
func Int64(raw Raw, names ...string) int64 {
	v, ok := First(raw, names...)
	if !ok {
		return 0
	}
	if i, err := cast.ToInt64E(v); err == nil {
		return i
	}
	return int64(math.Floor(toFloat(v)))
}

// OptionalInt64 可缺省的整数字段
func OptionalInt64(raw Raw, names ...string) *int64 {
	if !Has(raw, names...) {
		return nil
	}
	v := Int64(raw, names...)
	return &v
}

// Bool 布尔字段
func Bool(raw Raw, names ...string) bool {
	v, ok := First(raw, names...)
	if !ok {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false
	}
	return b
}

// Object 嵌套对象字段
func Object(raw Raw, names ...string) Raw {
	v, ok := First(raw, names...)
	if !ok {
		return nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil
	}
	return m
}

// Array 数组字段
func Array(raw Raw, names ...string) []interface{} {
	v, ok := First(raw, names...)
	if !ok {
		return nil
	}
	arr, err := cast.ToSliceE(v)
	if err != nil {
		return nil
	}
	return arr
}

// Objects 对象数组字段，跳过非对象元素
func Objects(raw Raw, names ...string) []Raw {
	arr := Array(raw, names...)
	out := make([]Raw, 0, len(arr))
	for _, item := range arr {
		if m, err := cast.ToStringMapE(item); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func toFloat(v interface{}) float64 {
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Timestamp 时间戳单位归一：大于1e10按毫秒处理，结果为向下取整的秒
func Timestamp(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > MillisecondThreshold {
		return int64(math.Floor(v / 1000))
	}
	return int64(math.Floor(v))
}

// TimestampField 读取时间戳字段，支持数字和RFC3339字符串
func TimestampField(raw Raw, names ...string) int64 {
	v, ok := First(raw, names...)
	if !ok {
		return 0
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return Timestamp(f)
	}
	if s, isString := v.(string); isString && s != "" {
		if t, err := cast.ToTimeE(s); err == nil {
			return t.Unix()
		}
	}
	return 0
}

// Amount 金额单位归一：小于1的小数和1e12以下的值视为展示单位并放大到基础单位，
// 不小于1e12的值视为已是基础单位。放大后超出int64范围的值按无效处理返回0
func Amount(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v == 0 {
		return 0
	}
	if v >= BaseUnitThreshold {
		return int64(math.Round(v))
	}
	if math.Abs(v) >= maxDisplayAmount {
		return 0
	}
	amt, err := btcutil.NewAmount(v)
	if err != nil {
		return 0
	}
	return int64(amt)
}

// AmountField 读取金额字段。显式基础单位字段优先原样使用，否则按Amount规则归一
func AmountField(raw Raw, baseUnitNames []string, names ...string) int64 {
	if Has(raw, baseUnitNames...) {
		return Int64(raw, baseUnitNames...)
	}
	if !Has(raw, names...) {
		return 0
	}
	return Amount(Float64(raw, names...))
}
