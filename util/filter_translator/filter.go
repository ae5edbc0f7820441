package filter_translator

import (
	"fmt"
	"strings"
	"time"

	"CriteriaManager/util/daterange"

	"gorm.io/gorm/clause"
)

// ========== 逻辑类型 ==========

// LogicalType 字段逻辑类型，决定可用操作符
type LogicalType string

const (
	TypeText        LogicalType = "text"
	TypeNumeric     LogicalType = "numeric"
	TypeBoolean     LogicalType = "boolean"
	TypeDate        LogicalType = "date"
	TypeDateTime    LogicalType = "datetime"
	TypeRelation    LogicalType = "relation"
	TypeMultiSelect LogicalType = "multiselect"
)

// ParseLogicalType 解析逻辑类型，兼容常见别名
func ParseLogicalType(s string) (LogicalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string", "email", "textarea":
		return TypeText, nil
	case "numeric", "number", "integer", "decimal":
		return TypeNumeric, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "datetime", "timestamp":
		return TypeDateTime, nil
	case "relation", "select", "radio":
		return TypeRelation, nil
	case "multiselect", "multi_select", "checkbox", "tags":
		return TypeMultiSelect, nil
	}
	return "", fmt.Errorf("unknown field type: %s", s)
}

func (t LogicalType) IsTemporal() bool {
	return t == TypeDate || t == TypeDateTime
}

// ========== 操作符 ==========

// Operator 规则操作符
type Operator string

const (
	Equal          Operator = "equal"
	NotEqual       Operator = "not_equal"
	Contains       Operator = "contains"
	NotContains    Operator = "not_contains"
	BeginsWith     Operator = "begins_with"
	NotBeginsWith  Operator = "not_begins_with"
	EndsWith       Operator = "ends_with"
	NotEndsWith    Operator = "not_ends_with"
	IsEmpty        Operator = "is_empty"
	IsNotEmpty     Operator = "is_not_empty"
	IsNull         Operator = "is_null"
	IsNotNull      Operator = "is_not_null"
	Less           Operator = "less"
	LessOrEqual    Operator = "less_or_equal"
	Greater        Operator = "greater"
	GreaterOrEqual Operator = "greater_or_equal"
	Between        Operator = "between"
	NotBetween     Operator = "not_between"
	Was            Operator = "was"
	In             Operator = "in"
	NotIn          Operator = "not_in"
)

var textOperators = []Operator{
	Equal, NotEqual, Contains, NotContains, BeginsWith, NotBeginsWith, EndsWith, NotEndsWith,
	IsEmpty, IsNotEmpty, IsNull, IsNotNull,
}

var numericOperators = []Operator{
	Equal, NotEqual, Less, LessOrEqual, Greater, GreaterOrEqual, Between, NotBetween, IsNull, IsNotNull,
}

var temporalOperators = append(append([]Operator{}, numericOperators...), Was)

var booleanOperators = []Operator{Equal, NotEqual, IsNull, IsNotNull}

var setOperators = []Operator{In, NotIn, IsEmpty, IsNotEmpty}

// defaultLegalOperators 逻辑类型 -> 合法操作符
func defaultLegalOperators() map[LogicalType][]Operator {
	return map[LogicalType][]Operator{
		TypeText:        textOperators,
		TypeNumeric:     numericOperators,
		TypeBoolean:     booleanOperators,
		TypeDate:        temporalOperators,
		TypeDateTime:    temporalOperators,
		TypeRelation:    setOperators,
		TypeMultiSelect: setOperators,
	}
}

// ========== 字段物理位置 ==========

// Pivot 多选字段的中间表存储
// 例: contact_tags(contact_id, tag_id) 中 ForeignKey=contact_id, ValueColumn=tag_id
type Pivot struct {
	Table       string
	ForeignKey  string
	ValueColumn string
	// Scope 附加等值条件，例如自定义字段的 field_id
	Scope map[string]interface{}
}

// Target 谓词作用的物理列
type Target struct {
	Table  string
	Column string
	// OwnerKey 多选字段在宿主表上的关联键，默认 id
	OwnerKey string
	Pivot    *Pivot
}

// Col 返回带表名限定的列
func (t Target) Col() clause.Column {
	return clause.Column{Table: t.Table, Name: t.Column}
}

// ========== 过滤参数 ==========

// FilterParam 单条规则的翻译输入（统一格式）
type FilterParam struct {
	Field    string      `json:"field"`
	Type     LogicalType `json:"type"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`

	Target Target `json:"-"`
	// Now 本次翻译的参照时间，由注册表注入
	Now   time.Time           `json:"-"`
	Dates *daterange.Resolver `json:"-"`
}

// FilterTranslator 操作符翻译器接口
// 负责将一条规则翻译为 Predicate
type FilterTranslator interface {
	// Translate 将规则翻译为谓词
	Translate(param FilterParam) (Predicate, error)

	// SupportedOperator 返回支持的操作符
	SupportedOperator() Operator

	// Validate 验证参数是否合法
	Validate(param FilterParam) error
}
