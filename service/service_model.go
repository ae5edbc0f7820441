package service

import (
	"context"
	"reflect"

	"CriteriaManager/criteria"
	"CriteriaManager/resource"
	ft "CriteriaManager/util/filter_translator"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceManager 单个资源的查询服务，经由 criteria 管道执行列表、计数与单条查询
type ServiceManager[T any] struct {
	Resource     T      // 被管理的资源模型
	ResourceName string // 模型名称
	Config       *resource.Config
	Pipeline     *criteria.Pipeline

	// DB 为 nil 时使用全局连接
	DB     *gorm.DB
	Logger *zap.Logger

	DefaultPageSize int
	// MaxTake take 上限，0 表示不限制
	MaxTake int
}

// ManagerOption ServiceManager 可选配置
type ManagerOption func(*managerOptions)

type managerOptions struct {
	db        *gorm.DB
	logger    *zap.Logger
	operators *ft.OperatorRegistry
	pageSize  int
	maxTake   int
}

func WithDB(db *gorm.DB) ManagerOption {
	return func(o *managerOptions) { o.db = db }
}

func WithLogger(logger *zap.Logger) ManagerOption {
	return func(o *managerOptions) { o.logger = logger }
}

func WithOperators(ops *ft.OperatorRegistry) ManagerOption {
	return func(o *managerOptions) { o.operators = ops }
}

// WithPaging 默认分页大小与 take 上限
func WithPaging(pageSize, maxTake int) ManagerOption {
	return func(o *managerOptions) {
		o.pageSize = pageSize
		o.maxTake = maxTake
	}
}

func getTypeName[T any](value T) string {
	t := reflect.TypeOf(value)
	// 如果 T 是指针，剥一层
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// NewServiceManager 创建一个新的 ServiceManager 实例
// 通过 reflect 获取模型名，表名与字段配置来自 resource.Config
func NewServiceManager[T any](model T, cfg *resource.Config, opts ...ManagerOption) *ServiceManager[T] {
	o := managerOptions{pageSize: 20}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &ServiceManager[T]{
		Resource:        model,
		ResourceName:    getTypeName(model),
		Config:          cfg,
		Pipeline:        criteria.NewPipeline(cfg, o.operators, o.logger),
		DB:              o.db,
		Logger:          o.logger,
		DefaultPageSize: o.pageSize,
		MaxTake:         o.maxTake,
	}
}

// TableName 资源表名
func (sm *ServiceManager[T]) TableName() string {
	return sm.Config.Table()
}

func (sm *ServiceManager[T]) db(ctx context.Context) *gorm.DB {
	db := sm.DB
	if db == nil {
		db = GetDB()
	}
	return db.WithContext(ctx)
}

