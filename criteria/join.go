package criteria

import (
	"fmt"

	"CriteriaManager/resource"
	ft "CriteriaManager/util/filter_translator"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Join LEFT JOIN table alias ON Left = Right
type Join struct {
	Table string
	Alias string
	// Left 宿主表一侧，Right 关联表一侧
	Left  clause.Column
	Right clause.Column
}

// Ref 列限定名：别名优先
func (j Join) Ref() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// identity 同一张表、同一对连接列视为同一个 join，与别名无关
func (j Join) identity() string {
	return fmt.Sprintf("%s|%s.%s|%s", j.Table, j.Left.Table, j.Left.Name, j.Right.Name)
}

func (j Join) apply(db *gorm.DB) *gorm.DB {
	table := clause.Table{Name: j.Table}
	if j.Alias != "" && j.Alias != j.Table {
		table.Alias = j.Alias
	}
	return db.Joins("LEFT JOIN ? ON ? = ?", table, j.Left, j.Right)
}

func (j Join) String() string {
	return fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = %s.%s", j.Table, j.Ref(), j.Left.Table, j.Left.Name, j.Ref(), j.Right.Name)
}

// relationJoin 以关联名为别名的 belongs-to join
func relationJoin(base string, rel *resource.Relation) Join {
	return Join{
		Table: rel.Table,
		Alias: rel.Name,
		Left:  clause.Column{Table: base, Name: rel.ForeignKey},
		Right: clause.Column{Table: rel.Name, Name: rel.OwnerKey},
	}
}

// JoinSet 按 identity 去重的 join 集合，保持加入顺序
type JoinSet struct {
	joins []Join
	index map[string]int
}

func NewJoinSet() *JoinSet {
	return &JoinSet{index: make(map[string]int)}
}

// Add 加入 join；已存在同一 join 时返回已有的（含其别名）
func (s *JoinSet) Add(j Join) (Join, bool) {
	key := j.identity()
	if i, ok := s.index[key]; ok {
		return s.joins[i], false
	}
	// 别名冲突时追加序号
	ref := j.Ref()
	for n := 2; s.hasRef(ref); n++ {
		ref = fmt.Sprintf("%s_%d", j.Ref(), n)
	}
	if ref != j.Ref() {
		j.Alias = ref
	}
	j.Right.Table = j.Ref()

	s.index[key] = len(s.joins)
	s.joins = append(s.joins, j)
	return j, true
}

func (s *JoinSet) hasRef(ref string) bool {
	for _, j := range s.joins {
		if j.Ref() == ref {
			return true
		}
	}
	return false
}

// All join 列表副本
func (s *JoinSet) All() []Join {
	out := make([]Join, len(s.joins))
	copy(out, s.joins)
	return out
}

func (s *JoinSet) Len() int {
	return len(s.joins)
}

// relationTarget 字段在宿主表或关联表上的位置。
// belongs-to 注册 join；has-many 返回 wrap 用于包裹 EXISTS 子查询
func relationTarget(env *Env, f resource.FieldAdapter) (ft.Target, []Join, func(ft.Predicate) ft.Predicate) {
	base := env.Resource.Table()
	if f.Relation == nil {
		return f.Target(base, env.Resource.PrimaryKey()), nil, nil
	}

	rel := f.Relation
	if rel.Kind == resource.BelongsTo {
		j, _ := env.Joins.Add(relationJoin(base, rel))
		return f.Target(j.Ref(), rel.OwnerKey), []Join{j}, nil
	}

	alias := rel.Name
	if alias == rel.Table {
		alias = ""
	}
	ref := rel.Table
	if alias != "" {
		ref = alias
	}
	wrap := func(inner ft.Predicate) ft.Predicate {
		return &ft.Exists{
			Table:      rel.Table,
			Alias:      alias,
			ForeignKey: rel.ForeignKey,
			Owner:      clause.Column{Table: base, Name: rel.OwnerKey},
			Where:      inner,
		}
	}
	return f.Target(ref, "id"), nil, wrap
}
