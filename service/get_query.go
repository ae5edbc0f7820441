package service

import (
	"context"
	"fmt"

	"CriteriaManager/criteria"
	"CriteriaManager/resource"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QueryOptions 分页配置，criteria 中带 take 时忽略
type QueryOptions struct {
	Page     int // 页码（从1开始）
	PageSize int // 每页数量
}

// QueryResult 查询结果
type QueryResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// List 条件查询（支持分页）
// 先编译全部 criteria，任一出错则不产生查询；计数只使用过滤部分
func (sm *ServiceManager[T]) List(
	ctx context.Context,
	memo *resource.Memo,
	opts *QueryOptions,
	cs ...criteria.Criterion,
) (*QueryResult[T], error) {
	if memo == nil {
		memo = resource.NewMemo()
	}
	plan, err := sm.Pipeline.Compile(memo, cs...)
	if err != nil {
		return nil, err
	}

	page, pageSize := sm.paging(opts, plan.Take)

	var total int64
	var results []T
	// 只读事务，计数与查询看到同一快照
	err = sm.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := plan.ApplyPredicates(tx.Model(&sm.Resource)).Count(&total).Error; err != nil {
			return fmt.Errorf("failed to count records: %w", err)
		}

		query := plan.Apply(tx.Model(&sm.Resource))
		if plan.Take != nil {
			query = query.Limit(pageSize)
		} else {
			query = query.Offset((page - 1) * pageSize).Limit(pageSize)
		}
		if err := query.Find(&results).Error; err != nil {
			return fmt.Errorf("failed to query records: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sm.Logger.Debug("list",
		zap.String("resource", sm.ResourceName),
		zap.Int64("total", total),
		zap.Int("rows", len(results)))

	// 构建返回结果
	result := &QueryResult[T]{
		Data:     results,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	if results == nil {
		result.Data = []T{}
	}
	if pageSize > 0 {
		result.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return result, nil
}

// paging take 优先并受 MaxTake 限制；否则按页码分页
func (sm *ServiceManager[T]) paging(opts *QueryOptions, take *int) (page, pageSize int) {
	if take != nil {
		pageSize = *take
		if sm.MaxTake > 0 && pageSize > sm.MaxTake {
			pageSize = sm.MaxTake
		}
		return 1, pageSize
	}

	page, pageSize = 1, sm.DefaultPageSize
	if opts != nil {
		if opts.Page > 1 {
			page = opts.Page
		}
		if opts.PageSize > 0 {
			pageSize = opts.PageSize
		}
	}
	if sm.MaxTake > 0 && pageSize > sm.MaxTake {
		pageSize = sm.MaxTake
	}
	return page, pageSize
}

// Count 条件计数，排序、take 与预加载不影响结果
func (sm *ServiceManager[T]) Count(ctx context.Context, memo *resource.Memo, cs ...criteria.Criterion) (int64, error) {
	if memo == nil {
		memo = resource.NewMemo()
	}
	plan, err := sm.Pipeline.Compile(memo, cs...)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := plan.ApplyPredicates(sm.db(ctx).Model(&sm.Resource)).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Exists 检查是否存在满足条件的记录
func (sm *ServiceManager[T]) Exists(ctx context.Context, memo *resource.Memo, cs ...criteria.Criterion) (bool, error) {
	count, err := sm.Count(ctx, memo, cs...)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
