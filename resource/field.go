package resource

import (
	"fmt"
	"strings"

	ft "CriteriaManager/util/filter_translator"
)

// FieldAdapter 可过滤字段描述：逻辑类型 + 物理存储位置
type FieldAdapter struct {
	Name string
	Type ft.LogicalType
	// Column 物理列；多选字段使用 Pivot
	Column string
	Pivot  *ft.Pivot
	// Custom 是否为用户自定义字段
	Custom bool
	// Volatile 依赖会话上下文（例如“我负责的”），含该字段的过滤器不可共享
	Volatile bool

	// Relation 非空时字段位于关联表，由点号路径解析得到
	Relation *Relation
}

// Operators 字段可用操作符
func (f FieldAdapter) Operators(registry *ft.OperatorRegistry) []ft.Operator {
	return registry.LegalOperators(f.Type)
}

// Target 以 table（表名或别名）限定的物理位置
func (f FieldAdapter) Target(table, ownerKey string) ft.Target {
	return ft.Target{Table: table, Column: f.Column, OwnerKey: ownerKey, Pivot: f.Pivot}
}

func (f FieldAdapter) validate() error {
	if f.Name == "" {
		return fmt.Errorf("field name cannot be empty")
	}
	if strings.Contains(f.Name, ".") {
		return fmt.Errorf("field %s: name cannot contain '.'", f.Name)
	}
	if f.Type == ft.TypeMultiSelect {
		if f.Pivot == nil {
			return fmt.Errorf("multiselect field %s requires pivot storage", f.Name)
		}
		return nil
	}
	if f.Column == "" {
		return fmt.Errorf("field %s requires a column", f.Name)
	}
	return nil
}

// ========== 搜索字段 ==========

// MatchMode 搜索匹配方式
type MatchMode string

const (
	MatchExact MatchMode = "exact"
	MatchLike  MatchMode = "like"
)

// ParseMatchMode 解析匹配方式，"=" 等同 exact
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "=", "exact", "equal":
		return MatchExact, nil
	case "like":
		return MatchLike, nil
	}
	return "", fmt.Errorf("unknown match mode: %s", s)
}

// SearchField 资源声明的可搜索字段，Name 可带关联前缀（source.name）
type SearchField struct {
	Name string
	Mode MatchMode
}

// RelationName 点号路径的关联名，无前缀时为空
func (s SearchField) RelationName() string {
	if i := strings.Index(s.Name, "."); i > 0 {
		return s.Name[:i]
	}
	return ""
}
