package criteria

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"CriteriaManager/resource"
	ft "CriteriaManager/util/filter_translator"
	"CriteriaManager/util/query_error"
)

// pairToken field:value 形式的 q 片段
var pairToken = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*):(.*)$`)

// RequestCriterion 请求参数形成的临时检索条件
type RequestCriterion struct {
	Params RequestParams
}

// Request 由请求参数构造 Criterion
func Request(p RequestParams) *RequestCriterion {
	return &RequestCriterion{Params: p}
}

func (c *RequestCriterion) Compile(env *Env) (*Spec, error) {
	res := env.Resource
	spec := &Spec{}

	eligible, err := c.eligibleFields(res)
	if err != nil {
		return nil, err
	}
	// search_match 缺省为 or
	match := ft.Or
	if strings.TrimSpace(c.Params.SearchMatch) != "" {
		if match, err = ft.ParseCondition(c.Params.SearchMatch); err != nil {
			return nil, query_error.NewInvalidValue("search_match", "", err)
		}
	}

	pred, joins, err := c.search(env, eligible, match)
	if err != nil {
		return nil, err
	}
	spec.Predicate = pred
	spec.Joins = joins

	eager := res.EagerLoadable()
	for _, name := range c.Params.With.Items() {
		rel, ok := res.Relation(name)
		if !ok || rel.Preload == "" {
			return nil, query_error.NewUndeclaredRelation(name, eager)
		}
		spec.With = append(spec.With, name)
	}

	for _, col := range c.Params.Select.Items() {
		if !res.IsSelectable(col) {
			return nil, query_error.NewUndeclaredColumn(col, res.SelectableColumns())
		}
		spec.Select = append(spec.Select, col)
	}

	for _, o := range c.Params.Order {
		ob, err := parseOrder(res, o)
		if err != nil {
			return nil, err
		}
		spec.Order = append(spec.Order, ob)
	}

	if c.Params.Take != nil {
		if *c.Params.Take < 0 {
			return nil, query_error.NewInvalidValue("take", "", fmt.Errorf("take must not be negative"))
		}
		take := *c.Params.Take
		spec.Take = &take
	}
	return spec, nil
}

// eligibleFields 声明顺序的可搜索字段，search_fields 只能收窄
func (c *RequestCriterion) eligibleFields(res *resource.Config) ([]resource.SearchField, error) {
	declared := res.SearchFields()
	raw := strings.TrimSpace(c.Params.SearchFields)
	if raw == "" {
		return declared, nil
	}

	var requested []string
	modes := make(map[string]resource.MatchMode)
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, mode, annotated := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		requested = append(requested, name)
		if annotated {
			m, err := resource.ParseMatchMode(mode)
			if err != nil {
				return nil, query_error.NewInvalidValue(name, "search_fields", err)
			}
			modes[name] = m
		}
	}

	out := make([]resource.SearchField, 0, len(declared))
	for _, s := range declared {
		mode, ok := modes[s.Name]
		if !ok && !contains(requested, s.Name) {
			continue
		}
		if ok {
			s.Mode = mode
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, query_error.NewRejectedSearchFields(requested, res.SearchFieldNames())
	}
	return out, nil
}

// splitQuery 拆分 q：field:value 对与裸文本。
// 不含分号且前缀不是可搜索字段时，整个 q 按裸文本处理（如 "re: hello"）
func splitQuery(res *resource.Config, q string) (map[string]string, string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, "", nil
	}
	tokens := strings.Split(q, ";")
	pairs := make(map[string]string)
	var bare []string
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		m := pairToken.FindStringSubmatch(token)
		if m == nil {
			bare = append(bare, token)
			continue
		}
		if _, ok := res.SearchField(m[1]); !ok {
			if len(tokens) == 1 {
				return nil, q, nil
			}
			return nil, "", query_error.NewUnknownField(m[1])
		}
		if v := strings.TrimSpace(m[2]); v != "" {
			pairs[m[1]] = v
		}
	}
	if len(pairs) == 0 {
		return nil, q, nil
	}
	return pairs, strings.Join(bare, ";"), nil
}

func (c *RequestCriterion) search(env *Env, fields []resource.SearchField, match ft.Condition) (ft.Predicate, []Join, error) {
	pairs, bare, err := splitQuery(env.Resource, c.Params.Q)
	if err != nil {
		return nil, nil, err
	}
	if len(pairs) == 0 && bare == "" {
		return nil, nil, nil
	}
	// 被 search_fields 收窄掉的字段不能静默丢弃
	if rejected := narrowedAway(pairs, fields); len(rejected) > 0 {
		return nil, nil, query_error.NewRejectedSearchFields(rejected, searchFieldNames(fields))
	}

	var (
		preds []ft.Predicate
		joins []Join
	)
	for _, s := range fields {
		value, ok := pairs[s.Name]
		if !ok {
			value = bare
		}
		if value == "" {
			continue
		}

		f, err := env.Resource.SearchTarget(s)
		if err != nil {
			return nil, nil, err
		}
		if f.Column == "" {
			return nil, nil, query_error.NewInvalidValue(s.Name, string(s.Mode), fmt.Errorf("field is not stored in a column"))
		}
		target, js, wrap := relationTarget(env, f)
		joins = append(joins, js...)

		var p ft.Predicate
		if s.Mode == resource.MatchLike {
			p = &ft.Like{Column: target.Col(), Pattern: "%" + ft.EscapeLike(value) + "%"}
		} else {
			p = &ft.Compare{Column: target.Col(), Op: ft.OpEq, Value: value}
		}
		if wrap != nil {
			p = wrap(p)
		}
		preds = append(preds, p)
	}

	if match == ft.Or {
		return ft.AnyOf(preds...), joins, nil
	}
	return ft.AllOf(preds...), joins, nil
}

func narrowedAway(pairs map[string]string, fields []resource.SearchField) []string {
	eligible := searchFieldNames(fields)
	var out []string
	for name := range pairs {
		if !contains(eligible, name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func searchFieldNames(fields []resource.SearchField) []string {
	out := make([]string, 0, len(fields))
	for _, s := range fields {
		out = append(out, s.Name)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
