package criteria

import (
	"fmt"

	ft "CriteriaManager/util/filter_translator"
	"CriteriaManager/util/query_error"
)

// RuleCriterion 持久化规则树
type RuleCriterion struct {
	Tree *Group
}

// Rules 由规则树构造 Criterion
func Rules(tree *Group) *RuleCriterion {
	return &RuleCriterion{Tree: tree}
}

// RulesFromJSON 解析持久化 JSON 并构造 Criterion
func RulesFromJSON(data []byte) (*RuleCriterion, error) {
	tree, err := ParseRules(data)
	if err != nil {
		return nil, err
	}
	return Rules(tree), nil
}

func (c *RuleCriterion) Compile(env *Env) (*Spec, error) {
	if c.Tree == nil {
		return nil, query_error.NewEmptyGroup("root")
	}
	p := &ruleParser{env: env}
	pred, err := p.group(c.Tree, "root")
	if err != nil {
		return nil, err
	}
	return &Spec{Predicate: pred, Joins: p.joins}, nil
}

type ruleParser struct {
	env   *Env
	joins []Join
	seen  map[string]bool
}

func (p *ruleParser) group(g *Group, path string) (ft.Predicate, error) {
	if len(g.Children) == 0 {
		return nil, query_error.NewEmptyGroup(path)
	}

	children := make([]ft.Predicate, 0, len(g.Children))
	for i, child := range g.Children {
		childPath := fmt.Sprintf("%s.children[%d]", path, i)
		var (
			pred ft.Predicate
			err  error
		)
		switch {
		case child.Group != nil:
			pred, err = p.group(child.Group, childPath)
		case child.Rule != nil:
			pred, err = p.rule(child.Rule)
		default:
			err = query_error.NewEmptyGroup(childPath)
		}
		if err != nil {
			return nil, err
		}
		children = append(children, pred)
	}

	if g.Condition == ft.Or {
		return ft.AnyOf(children...), nil
	}
	return ft.AllOf(children...), nil
}

func (p *ruleParser) rule(r *Rule) (ft.Predicate, error) {
	field, err := p.env.Resource.ResolveField(p.env.Memo, r.Field)
	if err != nil {
		return nil, err
	}

	// 声明类型必须与字段一致
	if r.Type != "" {
		declared, err := ft.ParseLogicalType(r.Type)
		if err != nil || declared != field.Type {
			return nil, query_error.NewIllegalOperator(r.Field, r.Type, r.Operator)
		}
	}

	target, joins, wrap := relationTarget(p.env, field)
	pred, err := p.env.Operators.Translate(ft.FilterParam{
		Field:    r.Field,
		Type:     field.Type,
		Operator: ft.Operator(r.Operator),
		Value:    r.Value,
		Target:   target,
	})
	if err != nil {
		return nil, err
	}

	p.addJoins(joins)
	if wrap != nil {
		pred = wrap(pred)
	}
	return pred, nil
}

// addJoins 同一关联在整棵树中只注册一次
func (p *ruleParser) addJoins(joins []Join) {
	if p.seen == nil {
		p.seen = make(map[string]bool)
	}
	for _, j := range joins {
		if !p.seen[j.identity()] {
			p.seen[j.identity()] = true
			p.joins = append(p.joins, j)
		}
	}
}

// VolatileFields 规则树中引用的会话相关字段
func VolatileFields(env *Env, tree *Group) []string {
	var out []string
	tree.Walk(func(r *Rule) {
		if f, err := env.Resource.ResolveField(env.Memo, r.Field); err == nil && f.Volatile {
			out = append(out, r.Field)
		}
	})
	return out
}
