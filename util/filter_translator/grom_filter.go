package filter_translator

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"CriteriaManager/util/daterange"
	"CriteriaManager/util/query_error"

	"gorm.io/gorm/clause"
)

// ========== 比较类翻译器 ==========

// EqualTranslator 等于 / 不等于翻译器
type EqualTranslator struct {
	Negate bool
}

func (t *EqualTranslator) SupportedOperator() Operator {
	if t.Negate {
		return NotEqual
	}
	return Equal
}

func (t *EqualTranslator) Validate(param FilterParam) error {
	return requireValue(param)
}

func (t *EqualTranslator) Translate(param FilterParam) (Predicate, error) {
	col := param.Target.Col()
	op := OpEq
	if t.Negate {
		op = OpNeq
	}

	switch param.Type {
	case TypeText:
		s, err := toText(param.Value)
		if err != nil {
			return nil, err
		}
		return &Compare{Column: col, Op: op, Value: s}, nil
	case TypeNumeric:
		n, err := toNumber(param.Value)
		if err != nil {
			return nil, err
		}
		return &Compare{Column: col, Op: op, Value: n}, nil
	case TypeBoolean:
		b, err := toBool(param.Value)
		if err != nil {
			return nil, err
		}
		return &Compare{Column: col, Op: op, Value: b}, nil
	case TypeDate:
		// 日期按整天比较
		ts, err := toTime(param.Value, param.Now.Location())
		if err != nil {
			return nil, err
		}
		day := daterange.DayBounds(ts)
		return &Range{Column: col, Lower: day.Start, Upper: day.End, Negate: t.Negate}, nil
	case TypeDateTime:
		ts, err := toTime(param.Value, param.Now.Location())
		if err != nil {
			return nil, err
		}
		return &Compare{Column: col, Op: op, Value: ts}, nil
	}
	return nil, fmt.Errorf("%s does not support %s fields", t.SupportedOperator(), param.Type)
}

// OrderingTranslator 大于 / 小于类翻译器
type OrderingTranslator struct {
	Op Operator
}

func (t *OrderingTranslator) SupportedOperator() Operator {
	return t.Op
}

func (t *OrderingTranslator) Validate(param FilterParam) error {
	return requireValue(param)
}

func (t *OrderingTranslator) Translate(param FilterParam) (Predicate, error) {
	col := param.Target.Col()
	cmp := map[Operator]CompareOp{
		Less: OpLt, LessOrEqual: OpLte, Greater: OpGt, GreaterOrEqual: OpGte,
	}[t.Op]

	switch param.Type {
	case TypeNumeric:
		n, err := toNumber(param.Value)
		if err != nil {
			return nil, err
		}
		return &Compare{Column: col, Op: cmp, Value: n}, nil
	case TypeDateTime:
		ts, err := toTime(param.Value, param.Now.Location())
		if err != nil {
			return nil, err
		}
		return &Compare{Column: col, Op: cmp, Value: ts}, nil
	case TypeDate:
		ts, err := toTime(param.Value, param.Now.Location())
		if err != nil {
			return nil, err
		}
		// 小于某天 = 早于当天开始；大于某天 = 晚于当天结束
		day := daterange.DayBounds(ts)
		switch t.Op {
		case Less, GreaterOrEqual:
			return &Compare{Column: col, Op: cmp, Value: day.Start}, nil
		default:
			return &Compare{Column: col, Op: cmp, Value: day.End}, nil
		}
	}
	return nil, fmt.Errorf("%s does not support %s fields", t.Op, param.Type)
}

// BetweenTranslator 区间翻译器，日期字段可接受区间关键字
type BetweenTranslator struct {
	Negate bool
}

func (t *BetweenTranslator) SupportedOperator() Operator {
	if t.Negate {
		return NotBetween
	}
	return Between
}

func (t *BetweenTranslator) Validate(param FilterParam) error {
	return requireValue(param)
}

func (t *BetweenTranslator) Translate(param FilterParam) (Predicate, error) {
	col := param.Target.Col()

	if param.Type.IsTemporal() {
		if kw, ok := keywordOf(param.Value); ok {
			r, err := param.Dates.Resolve(kw, param.Now)
			if err != nil {
				return nil, err
			}
			return &Range{Column: col, Lower: r.Start, Upper: r.End, Negate: t.Negate}, nil
		}
		if s, ok := param.Value.(string); ok {
			return nil, query_error.NewInvalidDateRangeKeyword(s)
		}
	}

	lo, hi, err := toPair(param.Value)
	if err != nil {
		return nil, err
	}

	switch param.Type {
	case TypeNumeric:
		a, err := toNumber(lo)
		if err != nil {
			return nil, err
		}
		b, err := toNumber(hi)
		if err != nil {
			return nil, err
		}
		return &Range{Column: col, Lower: a, Upper: b, Negate: t.Negate}, nil
	case TypeDate, TypeDateTime:
		a, err := toTime(lo, param.Now.Location())
		if err != nil {
			return nil, err
		}
		b, err := toTime(hi, param.Now.Location())
		if err != nil {
			return nil, err
		}
		if param.Type == TypeDate {
			a, b = daterange.DayBounds(a).Start, daterange.DayBounds(b).End
		}
		return &Range{Column: col, Lower: a, Upper: b, Negate: t.Negate}, nil
	}
	return nil, fmt.Errorf("%s does not support %s fields", t.SupportedOperator(), param.Type)
}

// WasTranslator 历史区间翻译器，值必须是区间关键字
type WasTranslator struct{}

func (t *WasTranslator) SupportedOperator() Operator {
	return Was
}

func (t *WasTranslator) Validate(param FilterParam) error {
	return requireValue(param)
}

func (t *WasTranslator) Translate(param FilterParam) (Predicate, error) {
	kw, _ := param.Value.(string)
	r, err := param.Dates.Resolve(kw, param.Now)
	if err != nil {
		return nil, err
	}
	return &Range{Column: param.Target.Col(), Lower: r.Start, Upper: r.End}, nil
}

// ========== 文本匹配翻译器 ==========

// LikeTranslator 包含 / 开头 / 结尾类翻译器
type LikeTranslator struct {
	Op      Operator
	Negate  bool
	Pattern func(escaped string) string
}

func (t *LikeTranslator) SupportedOperator() Operator {
	return t.Op
}

func (t *LikeTranslator) Validate(param FilterParam) error {
	return requireValue(param)
}

func (t *LikeTranslator) Translate(param FilterParam) (Predicate, error) {
	s, err := toText(param.Value)
	if err != nil {
		return nil, err
	}
	return &Like{
		Column:  param.Target.Col(),
		Pattern: t.Pattern(EscapeLike(s)),
		Negate:  t.Negate,
	}, nil
}

// ========== 空值翻译器 ==========

// NullTranslator IS NULL / IS NOT NULL 翻译器
type NullTranslator struct {
	Negate bool
}

func (t *NullTranslator) SupportedOperator() Operator {
	if t.Negate {
		return IsNotNull
	}
	return IsNull
}

func (t *NullTranslator) Validate(param FilterParam) error {
	return requireField(param)
}

func (t *NullTranslator) Translate(param FilterParam) (Predicate, error) {
	return &Null{Column: param.Target.Col(), Negate: t.Negate}, nil
}

// EmptyTranslator 为空 / 不为空翻译器
// 文本: NULL 或空串；关联: 外键为 NULL；多选: 中间表无记录
type EmptyTranslator struct {
	Negate bool
}

func (t *EmptyTranslator) SupportedOperator() Operator {
	if t.Negate {
		return IsNotEmpty
	}
	return IsEmpty
}

func (t *EmptyTranslator) Validate(param FilterParam) error {
	if err := requireField(param); err != nil {
		return err
	}
	return requirePivot(param)
}

func (t *EmptyTranslator) Translate(param FilterParam) (Predicate, error) {
	switch param.Type {
	case TypeText:
		return &Blank{Column: param.Target.Col(), Negate: t.Negate}, nil
	case TypeRelation:
		return &Null{Column: param.Target.Col(), Negate: t.Negate}, nil
	case TypeMultiSelect:
		return pivotExists(param.Target, nil, !t.Negate), nil
	}
	return nil, fmt.Errorf("%s does not support %s fields", t.SupportedOperator(), param.Type)
}

// ========== 集合翻译器 ==========

// InTranslator IN / NOT IN 翻译器
type InTranslator struct {
	Negate bool
}

func (t *InTranslator) SupportedOperator() Operator {
	if t.Negate {
		return NotIn
	}
	return In
}

func (t *InTranslator) Validate(param FilterParam) error {
	if err := requireValue(param); err != nil {
		return err
	}
	return requirePivot(param)
}

func (t *InTranslator) Translate(param FilterParam) (Predicate, error) {
	values, err := toKeys(param.Value)
	if err != nil {
		return nil, err
	}

	if param.Type == TypeMultiSelect {
		p := param.Target.Pivot
		in := &InSet{Column: clause.Column{Table: p.Table, Name: p.ValueColumn}, Values: values}
		return pivotExists(param.Target, in, t.Negate), nil
	}
	return &InSet{Column: param.Target.Col(), Values: values, Negate: t.Negate}, nil
}

// pivotExists 中间表 EXISTS，附带 Scope 等值条件
func pivotExists(target Target, where Predicate, negate bool) Predicate {
	p := target.Pivot
	owner := target.OwnerKey
	if owner == "" {
		owner = "id"
	}

	keys := make([]string, 0, len(p.Scope))
	for k := range p.Scope {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Predicate, 0, len(keys)+1)
	for _, k := range keys {
		conds = append(conds, &Compare{Column: clause.Column{Table: p.Table, Name: k}, Op: OpEq, Value: p.Scope[k]})
	}
	conds = append(conds, where)

	return &Exists{
		Table:      p.Table,
		ForeignKey: p.ForeignKey,
		Owner:      clause.Column{Table: target.Table, Name: owner},
		Where:      AllOf(conds...),
		Negate:     negate,
	}
}

// ========== 参数校验 ==========

func requireField(param FilterParam) error {
	if param.Field == "" {
		return fmt.Errorf("field cannot be empty")
	}
	if param.Target.Column == "" && param.Target.Pivot == nil {
		return fmt.Errorf("field %s has no storage column", param.Field)
	}
	return nil
}

func requireValue(param FilterParam) error {
	if err := requireField(param); err != nil {
		return err
	}
	if isMissing(param.Value) {
		return errMissingValue
	}
	return nil
}

func requirePivot(param FilterParam) error {
	if param.Type == TypeMultiSelect && param.Target.Pivot == nil {
		return fmt.Errorf("multiselect field %s has no pivot storage", param.Field)
	}
	return nil
}

// ========== 操作符注册表 ==========

// OperatorRegistry 逻辑类型 -> 合法操作符 -> 翻译器。
// 启动时构建，之后只读，可被并发请求共享
type OperatorRegistry struct {
	legal       map[LogicalType][]Operator
	translators map[Operator]FilterTranslator
	dates       *daterange.Resolver
	clock       func() time.Time
}

// RegistryOption 注册表选项
type RegistryOption func(*OperatorRegistry)

// WithClock 替换参照时间来源（测试用固定时钟）
func WithClock(clock func() time.Time) RegistryOption {
	return func(r *OperatorRegistry) { r.clock = clock }
}

// WithDateResolver 替换日期关键字解析器（例如周日起始）
func WithDateResolver(resolver *daterange.Resolver) RegistryOption {
	return func(r *OperatorRegistry) { r.dates = resolver }
}

// NewOperatorRegistry 创建注册表并注册全部内置翻译器
func NewOperatorRegistry(opts ...RegistryOption) *OperatorRegistry {
	registry := &OperatorRegistry{
		legal:       defaultLegalOperators(),
		translators: make(map[Operator]FilterTranslator),
		dates:       daterange.Default,
		clock:       time.Now,
	}

	registry.Register(&EqualTranslator{})
	registry.Register(&EqualTranslator{Negate: true})
	registry.Register(&OrderingTranslator{Op: Less})
	registry.Register(&OrderingTranslator{Op: LessOrEqual})
	registry.Register(&OrderingTranslator{Op: Greater})
	registry.Register(&OrderingTranslator{Op: GreaterOrEqual})
	registry.Register(&BetweenTranslator{})
	registry.Register(&BetweenTranslator{Negate: true})
	registry.Register(&WasTranslator{})
	registry.Register(&LikeTranslator{Op: Contains, Pattern: func(s string) string { return "%" + s + "%" }})
	registry.Register(&LikeTranslator{Op: NotContains, Negate: true, Pattern: func(s string) string { return "%" + s + "%" }})
	registry.Register(&LikeTranslator{Op: BeginsWith, Pattern: func(s string) string { return s + "%" }})
	registry.Register(&LikeTranslator{Op: NotBeginsWith, Negate: true, Pattern: func(s string) string { return s + "%" }})
	registry.Register(&LikeTranslator{Op: EndsWith, Pattern: func(s string) string { return "%" + s }})
	registry.Register(&LikeTranslator{Op: NotEndsWith, Negate: true, Pattern: func(s string) string { return "%" + s }})
	registry.Register(&NullTranslator{})
	registry.Register(&NullTranslator{Negate: true})
	registry.Register(&EmptyTranslator{})
	registry.Register(&EmptyTranslator{Negate: true})
	registry.Register(&InTranslator{})
	registry.Register(&InTranslator{Negate: true})

	for _, opt := range opts {
		opt(registry)
	}
	return registry
}

// Register 注册翻译器，同一操作符后注册者覆盖先注册者
func (r *OperatorRegistry) Register(translator FilterTranslator) {
	r.translators[translator.SupportedOperator()] = translator
}

// LegalOperators 返回逻辑类型的合法操作符（有序副本）
func (r *OperatorRegistry) LegalOperators(t LogicalType) []Operator {
	ops := r.legal[t]
	out := make([]Operator, len(ops))
	copy(out, ops)
	return out
}

// IsLegal 操作符是否适用于该逻辑类型
func (r *OperatorRegistry) IsLegal(t LogicalType, op Operator) bool {
	for _, o := range r.legal[t] {
		if o == op {
			return true
		}
	}
	return false
}

// GetSupportedOperators 获取所有已注册的操作符
func (r *OperatorRegistry) GetSupportedOperators() []Operator {
	operators := make([]Operator, 0, len(r.translators))
	for op := range r.translators {
		operators = append(operators, op)
	}
	sort.Slice(operators, func(i, j int) bool { return operators[i] < operators[j] })
	return operators
}

// Now 本次翻译使用的参照时间
func (r *OperatorRegistry) Now() time.Time {
	return r.clock()
}

// Translate 翻译单条规则。操作符不合法返回 IllegalOperator，值无法转换返回 InvalidValue
func (r *OperatorRegistry) Translate(param FilterParam) (Predicate, error) {
	if _, ok := r.legal[param.Type]; !ok {
		return nil, query_error.NewInvalidValue(param.Field, string(param.Operator),
			fmt.Errorf("unknown field type %q", param.Type))
	}
	if !r.IsLegal(param.Type, param.Operator) {
		return nil, query_error.NewIllegalOperator(param.Field, string(param.Type), string(param.Operator))
	}

	translator, ok := r.translators[param.Operator]
	if !ok {
		return nil, query_error.NewIllegalOperator(param.Field, string(param.Type), string(param.Operator))
	}

	if param.Now.IsZero() {
		param.Now = r.clock()
	}
	if param.Dates == nil {
		param.Dates = r.dates
	}

	// 验证参数
	if err := translator.Validate(param); err != nil {
		return nil, asCallerError(param, err)
	}

	pred, err := translator.Translate(param)
	if err != nil {
		return nil, asCallerError(param, err)
	}
	return pred, nil
}

// TranslateBatch 批量翻译，全部成功后以 AND 组合
func (r *OperatorRegistry) TranslateBatch(params []FilterParam) (Predicate, error) {
	preds := make([]Predicate, 0, len(params))
	for _, param := range params {
		p, err := r.Translate(param)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return AllOf(preds...), nil
}

func asCallerError(param FilterParam, err error) error {
	var qe *query_error.Error
	if errors.As(err, &qe) {
		return err
	}
	return query_error.NewInvalidValue(param.Field, string(param.Operator), err)
}

// DefaultRegistry 默认操作符注册表（全局只读）
var DefaultRegistry = NewOperatorRegistry()
