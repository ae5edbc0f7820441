package criteria

import (
	"fmt"
	"strings"

	"CriteriaManager/resource"
	ft "CriteriaManager/util/filter_translator"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Pipeline 将多个 Criterion 按固定顺序作用到基础查询上：
// 谓词 -> 扩展回调 -> 预加载 -> select -> 排序 -> take
type Pipeline struct {
	Resource  *resource.Config
	Operators *ft.OperatorRegistry
	Logger    *zap.Logger
}

// NewPipeline ops 为 nil 时使用默认注册表，logger 为 nil 时不输出
func NewPipeline(res *resource.Config, ops *ft.OperatorRegistry, logger *zap.Logger) *Pipeline {
	if ops == nil {
		ops = ft.DefaultRegistry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Resource: res, Operators: ops, Logger: logger}
}

// Plan 编译结果，可在执行前检查
type Plan struct {
	Resource  *resource.Config
	Predicate ft.Predicate
	// FilterJoins 谓词依赖的 join；OrderJoins 仅用于排序且未与前者重复的 join
	FilterJoins []Join
	OrderJoins  []Join
	With        []string
	Select      []string
	Order       []OrderBy
	Take        *int

	appends []func(*gorm.DB) *gorm.DB
}

// Compile 编译全部 Criterion。任一出错即返回，此时不会产生任何查询
func (p *Pipeline) Compile(memo *resource.Memo, criteria ...Criterion) (*Plan, error) {
	env := NewEnv(p.Resource, p.Operators, memo)
	plan := &Plan{Resource: p.Resource}

	var preds []ft.Predicate
	seenWith := make(map[string]bool)
	seenSelect := make(map[string]bool)
	for _, c := range criteria {
		if c == nil {
			continue
		}
		spec, err := c.Compile(env)
		if err != nil {
			return nil, err
		}
		preds = append(preds, spec.Predicate)
		for _, w := range spec.With {
			if !seenWith[w] {
				seenWith[w] = true
				plan.With = append(plan.With, w)
			}
		}
		for _, s := range spec.Select {
			if !seenSelect[s] {
				seenSelect[s] = true
				plan.Select = append(plan.Select, s)
			}
		}
		plan.Order = append(plan.Order, spec.Order...)
		if spec.Take != nil && (plan.Take == nil || *spec.Take < *plan.Take) {
			take := *spec.Take
			plan.Take = &take
		}
		plan.appends = append(plan.appends, spec.Append...)
	}
	plan.Predicate = ft.AllOf(preds...)
	plan.FilterJoins = env.Joins.All()

	// 排序 join 复用已有的过滤 join
	for i, o := range plan.Order {
		if o.Join == nil {
			continue
		}
		j, added := env.Joins.Add(*o.Join)
		plan.Order[i].Table = j.Ref()
		plan.Order[i].Join = &j
		if added {
			plan.OrderJoins = append(plan.OrderJoins, j)
		}
	}

	p.Logger.Debug("compiled criteria",
		zap.String("resource", p.Resource.Name()),
		zap.String("plan", plan.String()))
	return plan, nil
}

// Apply 编译并作用到 db
func (p *Pipeline) Apply(db *gorm.DB, criteria ...Criterion) (*gorm.DB, error) {
	plan, err := p.Compile(resource.NewMemo(), criteria...)
	if err != nil {
		return nil, err
	}
	return plan.Apply(db), nil
}

// ApplyPredicates 只作用过滤部分，用于计数
func (pl *Plan) ApplyPredicates(db *gorm.DB) *gorm.DB {
	for _, j := range pl.FilterJoins {
		db = j.apply(db)
	}
	if pl.Predicate != nil {
		db = ft.ApplyGorm(db, pl.Predicate)
	}
	for _, fn := range pl.appends {
		db = fn(db)
	}
	return db
}

// Apply 作用完整计划
func (pl *Plan) Apply(db *gorm.DB) *gorm.DB {
	db = pl.ApplyPredicates(db)
	for _, j := range pl.OrderJoins {
		db = j.apply(db)
	}
	for _, name := range pl.With {
		if rel, ok := pl.Resource.Relation(name); ok {
			db = db.Preload(rel.Preload)
		}
	}
	if cols := pl.SelectColumns(); len(cols) > 0 {
		db = db.Select(cols)
	}
	for _, o := range pl.Order {
		db = db.Order(clause.OrderByColumn{
			Column: clause.Column{Table: o.Table, Name: o.Column},
			Desc:   o.Desc,
		})
	}
	if pl.Take != nil {
		db = db.Limit(*pl.Take)
	}
	return db
}

// SelectColumns 带表名限定的 select 列：主键、请求列、预加载所需的键
func (pl *Plan) SelectColumns() []string {
	if len(pl.Select) == 0 {
		return nil
	}
	table := pl.Resource.Table()
	seen := make(map[string]bool)
	var out []string
	add := func(col string) {
		if !seen[col] {
			seen[col] = true
			out = append(out, table+"."+col)
		}
	}

	add(pl.Resource.PrimaryKey())
	for _, col := range pl.Select {
		add(col)
	}
	for _, name := range pl.With {
		rel, ok := pl.Resource.Relation(name)
		if !ok {
			continue
		}
		if rel.Kind == resource.BelongsTo {
			add(rel.ForeignKey)
		} else {
			add(rel.OwnerKey)
		}
	}
	return out
}

func (pl *Plan) String() string {
	var b strings.Builder
	if pl.Predicate != nil {
		b.WriteString("where " + pl.Predicate.String())
	}
	for _, joins := range [][]Join{pl.FilterJoins, pl.OrderJoins} {
		for _, j := range joins {
			b.WriteString("; " + j.String())
		}
	}
	if len(pl.With) > 0 {
		b.WriteString("; with " + strings.Join(pl.With, ","))
	}
	if len(pl.Select) > 0 {
		b.WriteString("; select " + strings.Join(pl.Select, ","))
	}
	for _, o := range pl.Order {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		b.WriteString(fmt.Sprintf("; order %s.%s %s", o.Table, o.Column, dir))
	}
	if pl.Take != nil {
		b.WriteString(fmt.Sprintf("; take %d", *pl.Take))
	}
	return b.String()
}
