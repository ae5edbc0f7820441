package service

import (
	"context"
	"errors"
	"fmt"

	"CriteriaManager/resource"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func gormColumn(name string) clause.Column { return clause.Column{Name: name} }

func gormTable(name string) clause.Table { return clause.Table{Name: name} }

// Lookup 关联表上 key -> value 的单值映射，例如 stages.id -> stages.pipeline_id
type Lookup struct {
	Table       string
	KeyColumn   string
	ValueColumn string
}

func (lk Lookup) memoKey(key interface{}) string {
	return fmt.Sprintf("lookup:%s:%s:%s:%v", lk.Table, lk.KeyColumn, lk.ValueColumn, key)
}

// LookupRelated 在 memo 范围内记忆化的关联值查询，批量导入时同一 key 只查一次。
// 记录不存在返回 ErrRecordNotFound，同样被记忆
func (sm *ServiceManager[T]) LookupRelated(
	ctx context.Context,
	memo *resource.Memo,
	lk Lookup,
	key interface{},
) (interface{}, error) {
	return memo.Remember(lk.memoKey(key), func() (interface{}, error) {
		row := map[string]interface{}{}
		err := sm.db(ctx).
			Table(lk.Table).
			Select([]string{lk.ValueColumn}).
			Where(clause.Eq{Column: gormColumn(lk.KeyColumn), Value: key}).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s.%s=%v", ErrRecordNotFound, lk.Table, lk.KeyColumn, key)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lookup %s: %w", lk.Table, err)
		}
		return row[lk.ValueColumn], nil
	})
}
