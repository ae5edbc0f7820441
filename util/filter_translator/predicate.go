package filter_translator

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ========== 谓词（封闭的表达式树） ==========

// Predicate 可检查、可组合的查询条件。
// 只有本包内的类型可以实现该接口，渲染为 gorm 的 clause.Expression
type Predicate interface {
	Expression() clause.Expression
	String() string
	predicate()
}

// Condition 分组连接方式
type Condition string

const (
	And Condition = "and"
	Or  Condition = "or"
)

// ParseCondition 解析分组条件，空值视为 and
func ParseCondition(s string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return And, nil
	case "or":
		return Or, nil
	}
	return "", fmt.Errorf("unknown group condition: %s", s)
}

// CompareOp 比较运算符
type CompareOp string

const (
	OpEq  CompareOp = "="
	OpNeq CompareOp = "<>"
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
)

// Compare 列与值比较
type Compare struct {
	Column clause.Column
	Op     CompareOp
	Value  interface{}
}

func (p *Compare) Expression() clause.Expression {
	switch p.Op {
	case OpNeq:
		return clause.Neq{Column: p.Column, Value: p.Value}
	case OpLt:
		return clause.Lt{Column: p.Column, Value: p.Value}
	case OpLte:
		return clause.Lte{Column: p.Column, Value: p.Value}
	case OpGt:
		return clause.Gt{Column: p.Column, Value: p.Value}
	case OpGte:
		return clause.Gte{Column: p.Column, Value: p.Value}
	default:
		return clause.Eq{Column: p.Column, Value: p.Value}
	}
}

func (p *Compare) String() string {
	return fmt.Sprintf("%s %s %v", columnName(p.Column), p.Op, p.Value)
}

// LikeEscape LIKE 转义字符，mysql 与 sqlite 均支持
const LikeEscape = '!'

// EscapeLike 转义 LIKE 通配符
func EscapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// Like 模糊匹配，Pattern 已包含通配符
type Like struct {
	Column  clause.Column
	Pattern string
	Negate  bool
}

func (p *Like) Expression() clause.Expression {
	sql := "? LIKE ? ESCAPE '!'"
	if p.Negate {
		sql = "? NOT LIKE ? ESCAPE '!'"
	}
	return clause.Expr{SQL: sql, Vars: []interface{}{p.Column, p.Pattern}}
}

func (p *Like) String() string {
	if p.Negate {
		return fmt.Sprintf("%s NOT LIKE %q", columnName(p.Column), p.Pattern)
	}
	return fmt.Sprintf("%s LIKE %q", columnName(p.Column), p.Pattern)
}

// InSet 集合匹配
type InSet struct {
	Column clause.Column
	Values []interface{}
	Negate bool
}

func (p *InSet) Expression() clause.Expression {
	in := clause.IN{Column: p.Column, Values: p.Values}
	if p.Negate {
		return clause.Not(in)
	}
	return in
}

func (p *InSet) String() string {
	op := "IN"
	if p.Negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s %v", columnName(p.Column), op, p.Values)
}

// Range 闭区间匹配
type Range struct {
	Column clause.Column
	Lower  interface{}
	Upper  interface{}
	Negate bool
}

func (p *Range) Expression() clause.Expression {
	sql := "? BETWEEN ? AND ?"
	if p.Negate {
		sql = "? NOT BETWEEN ? AND ?"
	}
	return clause.Expr{SQL: sql, Vars: []interface{}{p.Column, p.Lower, p.Upper}}
}

func (p *Range) String() string {
	op := "BETWEEN"
	if p.Negate {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("%s %s %v AND %v", columnName(p.Column), op, p.Lower, p.Upper)
}

// Null IS NULL / IS NOT NULL
type Null struct {
	Column clause.Column
	Negate bool
}

func (p *Null) Expression() clause.Expression {
	if p.Negate {
		return clause.Neq{Column: p.Column, Value: nil}
	}
	return clause.Eq{Column: p.Column, Value: nil}
}

func (p *Null) String() string {
	if p.Negate {
		return columnName(p.Column) + " IS NOT NULL"
	}
	return columnName(p.Column) + " IS NULL"
}

// Blank 文本为空：NULL 或空字符串
type Blank struct {
	Column clause.Column
	Negate bool
}

func (p *Blank) Expression() clause.Expression {
	if p.Negate {
		return clause.AndConditions{Exprs: []clause.Expression{
			clause.Neq{Column: p.Column, Value: nil},
			clause.Neq{Column: p.Column, Value: ""},
		}}
	}
	return clause.OrConditions{Exprs: []clause.Expression{
		clause.Eq{Column: p.Column, Value: nil},
		clause.Eq{Column: p.Column, Value: ""},
	}}
}

func (p *Blank) String() string {
	if p.Negate {
		return columnName(p.Column) + " IS NOT BLANK"
	}
	return columnName(p.Column) + " IS BLANK"
}

// Group AND/OR 组合
type Group struct {
	Condition Condition
	Children  []Predicate
}

// AllOf 以 AND 组合，忽略 nil
func AllOf(children ...Predicate) Predicate {
	return group(And, children)
}

// AnyOf 以 OR 组合，忽略 nil
func AnyOf(children ...Predicate) Predicate {
	return group(Or, children)
}

func group(cond Condition, children []Predicate) Predicate {
	kept := make([]Predicate, 0, len(children))
	for _, c := range children {
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Group{Condition: cond, Children: kept}
}

func (p *Group) Expression() clause.Expression {
	// 单个子节点直接返回，避免生成只有一个元素的 OrConditions
	if len(p.Children) == 1 {
		return p.Children[0].Expression()
	}
	exprs := make([]clause.Expression, 0, len(p.Children))
	for _, c := range p.Children {
		exprs = append(exprs, c.Expression())
	}
	if p.Condition == Or {
		return clause.OrConditions{Exprs: exprs}
	}
	return clause.AndConditions{Exprs: exprs}
}

func (p *Group) String() string {
	parts := make([]string, 0, len(p.Children))
	for _, c := range p.Children {
		parts = append(parts, c.String())
	}
	sep := " AND "
	if p.Condition == Or {
		sep = " OR "
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// Exists 关联表子查询
// EXISTS (SELECT 1 FROM table alias WHERE alias.fk = owner AND where)
type Exists struct {
	Table      string
	Alias      string
	ForeignKey string
	Owner      clause.Column
	Where      Predicate
	Negate     bool
}

func (p *Exists) ref() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Table
}

func (p *Exists) Expression() clause.Expression {
	sql := "EXISTS (SELECT 1 FROM ? WHERE ? = ?"
	if p.Negate {
		sql = "NOT " + sql
	}
	vars := []interface{}{
		clause.Table{Name: p.Table, Alias: p.Alias},
		clause.Column{Table: p.ref(), Name: p.ForeignKey},
		p.Owner,
	}
	if p.Where != nil {
		sql += " AND ?"
		vars = append(vars, p.Where.Expression())
	}
	return clause.Expr{SQL: sql + ")", Vars: vars}
}

func (p *Exists) String() string {
	prefix := "EXISTS"
	if p.Negate {
		prefix = "NOT EXISTS"
	}
	inner := fmt.Sprintf("%s.%s = %s", p.ref(), p.ForeignKey, columnName(p.Owner))
	if p.Where != nil {
		inner += " AND " + p.Where.String()
	}
	return fmt.Sprintf("%s (%s: %s)", prefix, p.Table, inner)
}

func (*Compare) predicate() {}
func (*Like) predicate()    {}
func (*InSet) predicate()   {}
func (*Range) predicate()   {}
func (*Null) predicate()    {}
func (*Blank) predicate()   {}
func (*Group) predicate()   {}
func (*Exists) predicate()  {}

func columnName(c clause.Column) string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// ========== GORM 工具函数 ==========

// ApplyGorm 将谓词应用到查询
func ApplyGorm(db *gorm.DB, p Predicate) *gorm.DB {
	if p == nil {
		return db
	}
	return db.Where(p.Expression())
}
