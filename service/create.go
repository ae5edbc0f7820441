package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// CreateOptions 创建表的配置选项
type CreateOptions struct {
	IfNotExists  bool // 如果表已存在则跳过
	DropIfExists bool // 如果表存在则删除后重建
}

// Create 创建资源表
func (sm *ServiceManager[T]) Create(ctx context.Context, opts *CreateOptions) error {
	db := sm.db(ctx)

	if opts == nil {
		opts = &CreateOptions{IfNotExists: true}
	}

	// 如果需要删除已存在的表
	if opts.DropIfExists {
		if err := db.Migrator().DropTable(&sm.Resource); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", sm.TableName(), err)
		}
	}

	if opts.IfNotExists && db.Migrator().HasTable(&sm.Resource) {
		return nil // 表已存在，跳过
	}

	if err := db.AutoMigrate(&sm.Resource); err != nil {
		return fmt.Errorf("failed to create table %s: %w", sm.TableName(), err)
	}
	return nil
}

// Index 索引定义
type Index struct {
	Name    string   // 索引名称
	Columns []string // 索引字段
	Unique  bool     // 是否唯一索引
}

// SearchIndexes 宿主表上每个搜索列一条索引，关联表上的搜索字段不在此处理
func (sm *ServiceManager[T]) SearchIndexes() []Index {
	var out []Index
	seen := make(map[string]bool)
	for _, s := range sm.Config.SearchFields() {
		if s.RelationName() != "" {
			continue
		}
		f, err := sm.Config.SearchTarget(s)
		if err != nil || f.Column == "" || f.Relation != nil || seen[f.Column] {
			continue
		}
		seen[f.Column] = true
		out = append(out, Index{
			Name:    fmt.Sprintf("idx_%s_%s", sm.TableName(), f.Column),
			Columns: []string{f.Column},
		})
	}
	return out
}

// CreateWithIndexes 创建数据表并添加索引，已存在的索引跳过
func (sm *ServiceManager[T]) CreateWithIndexes(ctx context.Context, opts *CreateOptions, indexes []Index) error {
	// 先创建表
	if err := sm.Create(ctx, opts); err != nil {
		return err
	}

	db := sm.db(ctx)
	for _, idx := range indexes {
		if err := sm.createIndex(db, idx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.Name, err)
		}
	}
	return nil
}

// createIndex 索引列来自资源声明，直接拼接
func (sm *ServiceManager[T]) createIndex(db *gorm.DB, idx Index) error {
	if db.Migrator().HasIndex(sm.TableName(), idx.Name) {
		return nil
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	cols := make([]interface{}, 0, len(idx.Columns))
	placeholders := ""
	for i, c := range idx.Columns {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		cols = append(cols, gormColumn(c))
	}
	sql := fmt.Sprintf("CREATE %sINDEX ? ON ? (%s)", unique, placeholders)
	args := append([]interface{}{gormColumn(idx.Name), gormTable(sm.TableName())}, cols...)
	return db.Exec(sql, args...).Error
}

// DropTable 删除数据表
func (sm *ServiceManager[T]) DropTable(ctx context.Context) error {
	if err := sm.db(ctx).Migrator().DropTable(&sm.Resource); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", sm.TableName(), err)
	}
	return nil
}

// HasTable 检查表是否存在
func (sm *ServiceManager[T]) HasTable(ctx context.Context) (bool, error) {
	return sm.db(ctx).Migrator().HasTable(&sm.Resource), nil
}
