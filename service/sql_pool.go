package service

import (
	"context"
	"fmt"
	"time"

	"CriteriaManager/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DBManager 数据库管理器
type DBManager struct {
	DB *gorm.DB
}

var globalDBManager *DBManager

// OpenDB 按配置打开 mysql 或 sqlite 连接
func OpenDB(cfg config.DBConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	case "mysql", "":
		dialector = mysql.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		// 准备语句执行，提高性能
		PrepareStmt: cfg.Driver != "sqlite",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 获取底层的 *sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 设置连接池参数；sqlite 单写者
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// InitDB 初始化全局数据库连接
func InitDB(cfg config.DBConfig) (*DBManager, error) {
	db, err := OpenDB(cfg, logger.Warn)
	if err != nil {
		return nil, err
	}
	globalDBManager = &DBManager{DB: db}
	return globalDBManager, nil
}

// GetDB 获取全局数据库实例
func GetDB() *gorm.DB {
	if globalDBManager == nil {
		panic("database not initialized, call InitDB first")
	}
	return globalDBManager.DB
}

// Close 关闭数据库连接
func (dm *DBManager) Close() error {
	sqlDB, err := dm.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
