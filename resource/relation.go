package resource

import "fmt"

// RelationKind 关联类型
type RelationKind string

const (
	// BelongsTo 宿主表持有外键：contacts.company_id -> companies.id
	BelongsTo RelationKind = "belongs_to"
	// HasMany 关联表持有外键：deals.contact_id -> contacts.id
	HasMany RelationKind = "has_many"
)

// Relation 资源声明的关联
type Relation struct {
	// Name 点号路径和 with 参数使用的名称，也作为过滤 join 的别名
	Name  string
	Kind  RelationKind
	Table string
	// ForeignKey belongs-to 时位于宿主表；has-many 时位于关联表
	ForeignKey string
	// OwnerKey belongs-to 时位于关联表；has-many 时位于宿主表。默认 id
	OwnerKey string
	// Preload gorm 关联名（结构体字段名），为空则不可预加载
	Preload string
	// Fields 关联表上可过滤的字段
	Fields []FieldAdapter
}

func (r *Relation) ownerKey() string {
	if r.OwnerKey == "" {
		return "id"
	}
	return r.OwnerKey
}

// Field 关联表上的字段
func (r *Relation) Field(name string) (FieldAdapter, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldAdapter{}, false
}

func (r *Relation) validate() error {
	if r.Name == "" || r.Table == "" {
		return fmt.Errorf("relation requires name and table")
	}
	if r.Kind != BelongsTo && r.Kind != HasMany {
		return fmt.Errorf("relation %s: unknown kind %q", r.Name, r.Kind)
	}
	if r.ForeignKey == "" {
		return fmt.Errorf("relation %s requires a foreign key", r.Name)
	}
	r.OwnerKey = r.ownerKey()
	for _, f := range r.Fields {
		if err := f.validate(); err != nil {
			return fmt.Errorf("relation %s: %w", r.Name, err)
		}
	}
	return nil
}
