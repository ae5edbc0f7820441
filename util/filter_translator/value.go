package filter_translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"CriteriaManager/util/daterange"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
)

var errMissingValue = errors.New("value is required")

// plain 规则树以 json.Number 保留数字，统一转为字符串处理
func plain(v interface{}) interface{} {
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return v
}

func isMissing(v interface{}) bool {
	v = plain(v)
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toText(v interface{}) (string, error) {
	v = plain(v)
	if v == nil {
		return "", errMissingValue
	}
	return cast.ToStringE(v)
}

// toNumber 保留整数，避免大整数精度丢失
func toNumber(v interface{}) (interface{}, error) {
	v = plain(v)
	if isMissing(v) {
		return nil, errMissingValue
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToInt64E(n)
	case float32, float64:
		f, _ := cast.ToFloat64E(n)
		if f == float64(int64(f)) {
			return int64(f), nil
		}
		return f, nil
	}
	return cast.ToFloat64E(v)
}

func toBool(v interface{}) (bool, error) {
	v = plain(v)
	if isMissing(v) {
		return false, errMissingValue
	}
	return cast.ToBoolE(v)
}

// toKey 关联 id：数字字符串转为整数，其它原样保留
func toKey(v interface{}) interface{} {
	v = plain(v)
	if s, ok := v.(string); ok {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i
		}
		return s
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

// toTime 解析时间，字符串按参照时间所在时区解析
func toTime(v interface{}, loc *time.Location) (time.Time, error) {
	v = plain(v)
	if isMissing(v) {
		return time.Time{}, errMissingValue
	}
	if loc == nil {
		loc = time.UTC
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, errMissingValue
		}
		return *t, nil
	case string:
		return dateparse.ParseIn(strings.TrimSpace(t), loc)
	}
	return cast.ToTimeInDefaultLocationE(v, loc)
}

// toList 接受切片或逗号分隔字符串
func toList(v interface{}) ([]interface{}, error) {
	if isMissing(v) {
		return nil, errMissingValue
	}
	if s, ok := v.(string); ok {
		parts := strings.Split(s, ",")
		out := make([]interface{}, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{v}, nil
	}
	out := make([]interface{}, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out, nil
}

func toKeys(v interface{}) ([]interface{}, error) {
	list, err := toList(v)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errMissingValue
	}
	for i := range list {
		list[i] = toKey(list[i])
	}
	return list, nil
}

// toPair between 的两个边界
func toPair(v interface{}) (interface{}, interface{}, error) {
	if m, ok := v.(map[string]interface{}); ok {
		return m["start"], m["end"], nil
	}
	list, err := toList(v)
	if err != nil {
		return nil, nil, err
	}
	if len(list) != 2 {
		return nil, nil, fmt.Errorf("expected two bounds, got %d", len(list))
	}
	return list[0], list[1], nil
}

// keywordOf 值为日期区间关键字时返回该关键字
func keywordOf(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, daterange.IsKeyword(s)
}
