package criteria

import (
	"CriteriaManager/resource"
	ft "CriteriaManager/util/filter_translator"

	"gorm.io/gorm"
)

// Env 编译期环境：资源配置、操作符注册表、请求级缓存和共享的 join 集合
type Env struct {
	Resource  *resource.Config
	Operators *ft.OperatorRegistry
	Memo      *resource.Memo
	Joins     *JoinSet
}

// NewEnv 创建编译环境，memo 可为 nil
func NewEnv(res *resource.Config, ops *ft.OperatorRegistry, memo *resource.Memo) *Env {
	if ops == nil {
		ops = ft.DefaultRegistry
	}
	return &Env{Resource: res, Operators: ops, Memo: memo, Joins: NewJoinSet()}
}

// OrderBy 排序指令。Join 非空时按关联表排序，Table 在合并 join 后确定
type OrderBy struct {
	Table  string
	Column string
	Desc   bool
	Join   *Join
}

// Spec Criterion 编译后的可检查结果
type Spec struct {
	Predicate ft.Predicate
	// Joins 谓词依赖的 join
	Joins  []Join
	With   []string
	Select []string
	Order  []OrderBy
	Take   *int
	Append []func(*gorm.DB) *gorm.DB
}

// Criterion 一个独立的查询修改单元。编译阶段完成全部校验，不访问数据库
type Criterion interface {
	Compile(env *Env) (*Spec, error)
}

// ========== 简单 Criterion ==========

type predicateCriterion struct {
	pred ft.Predicate
}

// Where 直接使用已构造的谓词（例如可见性范围）
func Where(p ft.Predicate) Criterion {
	return predicateCriterion{pred: p}
}

func (c predicateCriterion) Compile(*Env) (*Spec, error) {
	return &Spec{Predicate: c.pred}, nil
}

type appendCriterion struct {
	fn func(*gorm.DB) *gorm.DB
}

// Append 扩展点：回调接收构建中的查询，可追加条件
func Append(fn func(*gorm.DB) *gorm.DB) Criterion {
	return appendCriterion{fn: fn}
}

func (c appendCriterion) Compile(*Env) (*Spec, error) {
	return &Spec{Append: []func(*gorm.DB) *gorm.DB{c.fn}}, nil
}
