package service

import (
	"context"
	"errors"
	"fmt"

	"CriteriaManager/criteria"
	"CriteriaManager/resource"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRecordNotFound 记录不存在
var ErrRecordNotFound = errors.New("record not found")

// GetByID 按主键查询单条记录，with/select 等 criteria 同样生效
func (sm *ServiceManager[T]) GetByID(
	ctx context.Context,
	memo *resource.Memo,
	id interface{},
	cs ...criteria.Criterion,
) (*T, error) {
	plan, err := sm.Pipeline.Compile(memo, cs...)
	if err != nil {
		return nil, err
	}

	pk := clause.Column{Table: sm.Config.Table(), Name: sm.Config.PrimaryKey()}
	var result T
	err = plan.Apply(sm.db(ctx).Model(&sm.Resource)).
		Where(clause.Eq{Column: pk, Value: id}).
		Take(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %v", ErrRecordNotFound, sm.ResourceName, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &result, nil
}
