package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CriteriaManager/config"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// Cache 过滤器读缓存。RedisManager 为生产实现
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisManager Redis 管理器
type RedisManager struct {
	Client *redis.Client
}

// InitRedis 初始化 Redis 连接
func InitRedis(cfg config.RedisConfig) (*RedisManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           0, // 使用默认 DB
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return &RedisManager{Client: client}, nil
}

// Close 关闭 Redis 连接
func (rm *RedisManager) Close() error {
	return rm.Client.Close()
}

// Set 设置缓存（带过期时间）
func (rm *RedisManager) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return rm.Client.Set(ctx, key, data, expiration).Err()
}

// Get 获取缓存，未命中返回 ErrCacheMiss
func (rm *RedisManager) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := rm.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete 删除缓存
func (rm *RedisManager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return rm.Client.Del(ctx, keys...).Err()
}

// ----------------- 异步写缓存 -----------------

// writedownAsync 后台回填缓存，不阻塞请求；失败只记录日志。
// valid 非空时在写入前后各检查一次，值已过期则不写或撤销写入
func writedownAsync(cache Cache, key string, value interface{}, expiration time.Duration, valid func() bool, log func(key string, err error)) {
	if cache == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if valid != nil && !valid() {
			return
		}
		if err := cache.Set(ctx, key, value, expiration); err != nil {
			log(key, err)
			return
		}
		// Set 期间发生了失效
		if valid != nil && !valid() {
			if err := cache.Delete(ctx, key); err != nil {
				log(key, err)
			}
		}
	}()
}
