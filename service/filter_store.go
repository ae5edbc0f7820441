package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"CriteriaManager/criteria"
	"CriteriaManager/resource"
	ckb "CriteriaManager/util/cache_key_builder"
	ft "CriteriaManager/util/filter_translator"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrFilterNotFound     = errors.New("filter not found")
	ErrSystemFilterDelete = errors.New("system filters cannot be deleted")
	ErrVolatileShared     = errors.New("filters using session-dependent fields cannot be shared")
	ErrReadonlyFilter     = errors.New("filter is read-only")
)

// Filter 持久化的命名过滤器，UserID 为空表示系统过滤器
type Filter struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:191;not null" json:"name"`
	Resource   string    `gorm:"size:64;index;not null" json:"resource"`
	UserID     *uint     `gorm:"index" json:"user_id"`
	Rules      string    `gorm:"type:text;not null" json:"rules"`
	IsShared   bool      `json:"is_shared"`
	IsReadonly bool      `json:"is_readonly"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Tree 解析规则
func (f *Filter) Tree() (*criteria.Group, error) {
	return criteria.ParseRules([]byte(f.Rules))
}

// FilterDefault 某视图下的默认过滤器，UserID 为空时对所有用户生效
type FilterDefault struct {
	ID       uint   `gorm:"primaryKey"`
	FilterID uint   `gorm:"index;not null"`
	Resource string `gorm:"size:64;not null"`
	View     string `gorm:"size:64;not null"`
	UserID   *uint  `gorm:"index"`
}

// FilterStore 过滤器存储，读路径带可选缓存
type FilterStore struct {
	db        *gorm.DB
	registry  *resource.Registry
	operators *ft.OperatorRegistry
	logger    *zap.Logger

	cache Cache
	ttl   time.Duration
	keys  *ckb.TemplateKeyBuilder[Filter]

	// gens 每次失效递增，回填前后比对，防止旧值写回
	mu   sync.Mutex
	gens map[uint]uint64
}

// StoreOption FilterStore 可选配置
type StoreOption func(*FilterStore)

// WithCache 启用读缓存
func WithCache(cache Cache, ttl time.Duration) StoreOption {
	return func(s *FilterStore) {
		s.cache = cache
		s.ttl = ttl
	}
}

func WithStoreOperators(ops *ft.OperatorRegistry) StoreOption {
	return func(s *FilterStore) { s.operators = ops }
}

func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *FilterStore) { s.logger = logger }
}

// NewFilterStore db 为 nil 时使用全局连接
func NewFilterStore(db *gorm.DB, registry *resource.Registry, opts ...StoreOption) *FilterStore {
	s := &FilterStore{
		db:        db,
		registry:  registry,
		operators: ft.DefaultRegistry,
		logger:    zap.NewNop(),
		keys:      ckb.NewTemplateKeyBuilder[Filter]("criteria:filter:{id}"),
		gens:      make(map[uint]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FilterStore) conn(ctx context.Context) *gorm.DB {
	db := s.db
	if db == nil {
		db = GetDB()
	}
	return db.WithContext(ctx)
}

// Migrate 创建 filters 与 filter_defaults 表
func (s *FilterStore) Migrate(ctx context.Context) error {
	if err := s.conn(ctx).AutoMigrate(&Filter{}, &FilterDefault{}); err != nil {
		return fmt.Errorf("failed to migrate filter tables: %w", err)
	}
	return nil
}

// Save 校验并保存过滤器，规则以规范形式写回 f.Rules。
// 规则必须能在目标资源上编译；引用会话相关字段的过滤器不可共享
func (s *FilterStore) Save(ctx context.Context, f *Filter) error {
	res, err := s.registry.Get(f.Resource)
	if err != nil {
		return err
	}
	tree, err := f.Tree()
	if err != nil {
		return err
	}

	memo := resource.NewMemo()
	pipeline := criteria.NewPipeline(res, s.operators, s.logger)
	if _, err := pipeline.Compile(memo, criteria.Rules(tree)); err != nil {
		return err
	}
	if f.IsShared {
		env := criteria.NewEnv(res, s.operators, memo)
		if fields := criteria.VolatileFields(env, tree); len(fields) > 0 {
			return fmt.Errorf("%w: %s", ErrVolatileShared, strings.Join(fields, ", "))
		}
	}

	canonical, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	f.Rules = string(canonical)

	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if f.ID != 0 {
			var existing Filter
			err := tx.First(&existing, f.ID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %d", ErrFilterNotFound, f.ID)
			}
			if err != nil {
				return fmt.Errorf("failed to load filter: %w", err)
			}
			if existing.IsReadonly {
				return fmt.Errorf("%w: %d", ErrReadonlyFilter, f.ID)
			}
		}
		if err := tx.Save(f).Error; err != nil {
			return fmt.Errorf("failed to save filter: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, f.ID)
	return nil
}

// Get 先读缓存，未命中回源数据库并异步回填
func (s *FilterStore) Get(ctx context.Context, id uint) (*Filter, error) {
	key := s.keys.MustBuildKey(&Filter{ID: id})
	if s.cache != nil {
		var cached Filter
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("filter cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	// 先取代数再读库
	gen := s.generation(id)
	var f Filter
	err := s.conn(ctx).First(&f, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrFilterNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load filter: %w", err)
	}

	valid := func() bool { return s.generation(id) == gen }
	writedownAsync(s.cache, key, f, s.ttl, valid, func(key string, err error) {
		s.logger.Warn("filter cache write failed", zap.String("key", key), zap.Error(err))
	})
	return &f, nil
}

// Delete 删除过滤器及其默认标记
func (s *FilterStore) Delete(ctx context.Context, id uint) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var f Filter
		err := tx.First(&f, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrFilterNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to load filter: %w", err)
		}
		if f.UserID == nil {
			return fmt.Errorf("%w: %d", ErrSystemFilterDelete, id)
		}
		if err := tx.Where("filter_id = ?", id).Delete(&FilterDefault{}).Error; err != nil {
			return fmt.Errorf("failed to delete filter defaults: %w", err)
		}
		if err := tx.Delete(&Filter{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete filter: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// MarkDefault 将过滤器设为 view 的默认值，userID 为 nil 时设置系统默认，替换原有标记
func (s *FilterStore) MarkDefault(ctx context.Context, id uint, view string, userID *uint) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var f Filter
		err := tx.First(&f, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrFilterNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to load filter: %w", err)
		}

		scope := tx.Where("resource = ? AND view = ?", f.Resource, view)
		if userID == nil {
			scope = scope.Where("user_id IS NULL")
		} else {
			scope = scope.Where("user_id = ?", *userID)
		}
		err = scope.Delete(&FilterDefault{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear default filter: %w", err)
		}
		d := FilterDefault{FilterID: id, Resource: f.Resource, View: view, UserID: userID}
		if err := tx.Create(&d).Error; err != nil {
			return fmt.Errorf("failed to mark default filter: %w", err)
		}
		return nil
	})
}

// DefaultFor 用户自己的默认优先，其次系统默认
func (s *FilterStore) DefaultFor(ctx context.Context, resourceName, view string, userID uint) (*Filter, error) {
	var d FilterDefault
	err := s.conn(ctx).
		Where("resource = ? AND view = ?", resourceName, view).
		Where("user_id = ? OR user_id IS NULL", userID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "user_id"}, Desc: true}).
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no default for %s/%s", ErrFilterNotFound, resourceName, view)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load default filter: %w", err)
	}
	return s.Get(ctx, d.FilterID)
}

// Visible 用户可见的过滤器：自己的、共享的与系统的，按名称排序
func (s *FilterStore) Visible(ctx context.Context, resourceName string, userID uint) ([]Filter, error) {
	var out []Filter
	err := s.conn(ctx).
		Where("resource = ?", resourceName).
		Where("user_id = ? OR user_id IS NULL OR is_shared = ?", userID, true).
		Order("name").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}
	return out, nil
}

// Criterion 加载过滤器并构造规则 Criterion，资源不符视为不存在
func (s *FilterStore) Criterion(ctx context.Context, id uint, resourceName string) (criteria.Criterion, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Resource != resourceName {
		return nil, fmt.Errorf("%w: %d on %s", ErrFilterNotFound, id, resourceName)
	}
	tree, err := f.Tree()
	if err != nil {
		return nil, err
	}
	return criteria.Rules(tree), nil
}

func (s *FilterStore) generation(id uint) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[id]
}

// invalidate 先递增代数再删除缓存
func (s *FilterStore) invalidate(ctx context.Context, id uint) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	s.gens[id]++
	s.mu.Unlock()

	key := s.keys.MustBuildKey(&Filter{ID: id})
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("filter cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
