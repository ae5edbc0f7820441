package resource

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	ft "CriteriaManager/util/filter_translator"
)

// ========== 自定义字段类型 ==========

// FieldTypes 可插拔的自定义字段类型表：类型名 -> 逻辑类型。
// 在启动阶段注册，冻结后只读
type FieldTypes struct {
	mu     sync.RWMutex
	types  map[string]ft.LogicalType
	frozen bool
}

// NewFieldTypes 创建包含内置类型的类型表
func NewFieldTypes() *FieldTypes {
	r := &FieldTypes{types: make(map[string]ft.LogicalType)}
	for name, t := range map[string]ft.LogicalType{
		"Text":        ft.TypeText,
		"Textarea":    ft.TypeText,
		"Email":       ft.TypeText,
		"Url":         ft.TypeText,
		"Phone":       ft.TypeText,
		"Number":      ft.TypeNumeric,
		"Numeric":     ft.TypeNumeric,
		"Boolean":     ft.TypeBoolean,
		"Date":        ft.TypeDate,
		"DateTime":    ft.TypeDateTime,
		"Select":      ft.TypeRelation,
		"Radio":       ft.TypeRelation,
		"MultiSelect": ft.TypeMultiSelect,
		"Checkbox":    ft.TypeMultiSelect,
	} {
		r.types[strings.ToLower(name)] = t
	}
	return r
}

// Register 注册新的字段类型
func (r *FieldTypes) Register(name string, t ft.LogicalType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("field types are frozen, cannot register %s", name)
	}
	r.types[strings.ToLower(name)] = t
	return nil
}

// Freeze 冻结类型表
func (r *FieldTypes) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Resolve 类型名 -> 逻辑类型
func (r *FieldTypes) Resolve(name string) (ft.LogicalType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown custom field type: %s", name)
	}
	return t, nil
}

// Names 已注册的类型名
func (r *FieldTypes) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for k := range r.types {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultFieldTypes 默认类型表
var DefaultFieldTypes = NewFieldTypes()

// ========== 自定义字段 ==========

// CustomField 用户自定义字段，ID 为稳定标识（例如 cf_industry）
type CustomField struct {
	ID        string
	Label     string
	FieldType string
	Column    string
	// Pivot 多选类型的存储；通常为共享值表加 field_id 作用域
	Pivot *ft.Pivot
}

// customFields 单个资源的自定义字段表
type customFields struct {
	byID  map[string]FieldAdapter
	order []string
}

func newCustomFields(types *FieldTypes, defs []CustomField) (*customFields, error) {
	c := &customFields{byID: make(map[string]FieldAdapter, len(defs))}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("custom field id cannot be empty")
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate custom field %s", def.ID)
		}
		t, err := types.Resolve(def.FieldType)
		if err != nil {
			return nil, fmt.Errorf("custom field %s: %w", def.ID, err)
		}
		adapter := FieldAdapter{
			Name:   def.ID,
			Type:   t,
			Column: def.Column,
			Pivot:  def.Pivot,
			Custom: true,
		}
		if err := adapter.validate(); err != nil {
			return nil, err
		}
		c.byID[def.ID] = adapter
		c.order = append(c.order, def.ID)
	}
	return c, nil
}

func (c *customFields) resolve(id string) (FieldAdapter, bool) {
	f, ok := c.byID[id]
	return f, ok
}
