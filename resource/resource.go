package resource

import (
	"fmt"
	"strings"

	ft "CriteriaManager/util/filter_translator"
	"CriteriaManager/util/query_error"
)

// Definition 资源声明，启动阶段构造一次
type Definition struct {
	Name       string
	Table      string
	PrimaryKey string

	Fields       []FieldAdapter
	SearchFields []SearchField
	Relations    []Relation
	// Selectable 除字段列外允许 select 的列
	Selectable   []string
	CustomFields []CustomField
	// FieldTypes 自定义字段类型表，nil 时使用 DefaultFieldTypes
	FieldTypes *FieldTypes
}

// Config 单个资源的不可变配置，构造后可被并发请求共享
type Config struct {
	name       string
	table      string
	primaryKey string

	fields     map[string]FieldAdapter
	fieldOrder []string
	search     []SearchField
	relations  map[string]*Relation
	relOrder   []string
	selectable map[string]bool
	selOrder   []string
	custom     *customFields
}

// New 校验声明并构造配置
func New(def Definition) (*Config, error) {
	if def.Name == "" || def.Table == "" {
		return nil, fmt.Errorf("resource requires name and table")
	}
	c := &Config{
		name:       def.Name,
		table:      def.Table,
		primaryKey: def.PrimaryKey,
		fields:     make(map[string]FieldAdapter, len(def.Fields)),
		relations:  make(map[string]*Relation, len(def.Relations)),
		selectable: make(map[string]bool),
	}
	if c.primaryKey == "" {
		c.primaryKey = "id"
	}
	c.addSelectable(c.primaryKey)

	for _, f := range def.Fields {
		if err := f.validate(); err != nil {
			return nil, fmt.Errorf("resource %s: %w", def.Name, err)
		}
		if _, dup := c.fields[f.Name]; dup {
			return nil, fmt.Errorf("resource %s: duplicate field %s", def.Name, f.Name)
		}
		c.fields[f.Name] = f
		c.fieldOrder = append(c.fieldOrder, f.Name)
		if f.Column != "" {
			c.addSelectable(f.Column)
		}
	}

	for i := range def.Relations {
		rel := def.Relations[i]
		if err := rel.validate(); err != nil {
			return nil, fmt.Errorf("resource %s: %w", def.Name, err)
		}
		if _, dup := c.relations[rel.Name]; dup {
			return nil, fmt.Errorf("resource %s: duplicate relation %s", def.Name, rel.Name)
		}
		c.relations[rel.Name] = &rel
		c.relOrder = append(c.relOrder, rel.Name)
		if rel.Kind == BelongsTo {
			c.addSelectable(rel.ForeignKey)
		}
	}

	for _, col := range def.Selectable {
		c.addSelectable(col)
	}

	for _, s := range def.SearchFields {
		if s.Mode != MatchExact && s.Mode != MatchLike {
			return nil, fmt.Errorf("resource %s: search field %s has unknown mode %q", def.Name, s.Name, s.Mode)
		}
		if rel := s.RelationName(); rel != "" {
			if _, ok := c.relations[rel]; !ok {
				return nil, fmt.Errorf("resource %s: search field %s references undeclared relation", def.Name, s.Name)
			}
		}
		c.search = append(c.search, s)
	}

	types := def.FieldTypes
	if types == nil {
		types = DefaultFieldTypes
	}
	custom, err := newCustomFields(types, def.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", def.Name, err)
	}
	c.custom = custom
	for _, id := range custom.order {
		if f := custom.byID[id]; f.Column != "" {
			c.addSelectable(f.Column)
		}
	}
	return c, nil
}

// MustNew 启动代码使用，声明错误直接 panic
func MustNew(def Definition) *Config {
	c, err := New(def)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Config) addSelectable(col string) {
	if !c.selectable[col] {
		c.selectable[col] = true
		c.selOrder = append(c.selOrder, col)
	}
}

func (c *Config) Name() string       { return c.name }
func (c *Config) Table() string      { return c.table }
func (c *Config) PrimaryKey() string { return c.primaryKey }

// Fields 内置字段（声明顺序）
func (c *Config) Fields() []FieldAdapter {
	out := make([]FieldAdapter, 0, len(c.fieldOrder))
	for _, name := range c.fieldOrder {
		out = append(out, c.fields[name])
	}
	return out
}

// CustomFields 自定义字段（声明顺序）
func (c *Config) CustomFields() []FieldAdapter {
	out := make([]FieldAdapter, 0, len(c.custom.order))
	for _, id := range c.custom.order {
		out = append(out, c.custom.byID[id])
	}
	return out
}

// Field 按名称解析字段：内置字段 -> 自定义字段 -> 关联字段（relation.field）
func (c *Config) Field(name string) (FieldAdapter, error) {
	if f, ok := c.fields[name]; ok {
		return f, nil
	}
	if f, ok := c.custom.resolve(name); ok {
		return f, nil
	}
	if relName, fieldName, ok := strings.Cut(name, "."); ok {
		rel, found := c.relations[relName]
		if !found {
			return FieldAdapter{}, query_error.NewUnknownField(name)
		}
		f, found := rel.Field(fieldName)
		if !found {
			return FieldAdapter{}, query_error.NewUnknownField(name)
		}
		f.Name = name
		f.Relation = rel
		return f, nil
	}
	return FieldAdapter{}, query_error.NewUnknownField(name)
}

// SearchFields 声明的搜索字段（声明顺序）
func (c *Config) SearchFields() []SearchField {
	out := make([]SearchField, len(c.search))
	copy(out, c.search)
	return out
}

// SearchFieldNames 声明的搜索字段名（声明顺序）
func (c *Config) SearchFieldNames() []string {
	out := make([]string, 0, len(c.search))
	for _, s := range c.search {
		out = append(out, s.Name)
	}
	return out
}

// SearchField 查找声明的搜索字段
func (c *Config) SearchField(name string) (SearchField, bool) {
	for _, s := range c.search {
		if s.Name == name {
			return s, true
		}
	}
	return SearchField{}, false
}

// SearchTarget 搜索字段对应的物理位置。
// 同名字段取其列，否则视为宿主表（或关联表）上的同名文本列
func (c *Config) SearchTarget(s SearchField) (FieldAdapter, error) {
	if f, err := c.Field(s.Name); err == nil {
		return f, nil
	}
	relName, col, dotted := strings.Cut(s.Name, ".")
	if !dotted {
		return FieldAdapter{Name: s.Name, Type: ft.TypeText, Column: s.Name}, nil
	}
	rel, ok := c.relations[relName]
	if !ok {
		return FieldAdapter{}, query_error.NewUnknownField(s.Name)
	}
	return FieldAdapter{Name: s.Name, Type: ft.TypeText, Column: col, Relation: rel}, nil
}

// Relation 按名称查找关联
func (c *Config) Relation(name string) (*Relation, bool) {
	r, ok := c.relations[name]
	return r, ok
}

// RelationByTable 按表名查找 belongs-to 关联（order 参数的 table 形式使用）
func (c *Config) RelationByTable(table string) (*Relation, bool) {
	for _, name := range c.relOrder {
		if r := c.relations[name]; r.Table == table && r.Kind == BelongsTo {
			return r, true
		}
	}
	return nil, false
}

// EagerLoadable 可预加载的关联名（声明顺序）
func (c *Config) EagerLoadable() []string {
	out := make([]string, 0, len(c.relOrder))
	for _, name := range c.relOrder {
		if c.relations[name].Preload != "" {
			out = append(out, name)
		}
	}
	return out
}

// IsSelectable 列是否允许 select
func (c *Config) IsSelectable(col string) bool {
	return c.selectable[col]
}

// SelectableColumns 允许 select 的列（声明顺序）
func (c *Config) SelectableColumns() []string {
	out := make([]string, len(c.selOrder))
	copy(out, c.selOrder)
	return out
}

// OrderColumn 排序参数中的普通字段 -> 宿主表列
func (c *Config) OrderColumn(name string) (string, bool) {
	if f, ok := c.fields[name]; ok && f.Column != "" {
		return f.Column, true
	}
	if f, ok := c.custom.resolve(name); ok && f.Column != "" {
		return f.Column, true
	}
	if c.selectable[name] {
		return name, true
	}
	return "", false
}
