package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// DBConfig 数据库连接配置
type DBConfig struct {
	Driver     string // mysql | sqlite
	User       string
	Password   string
	Host       string
	Port       string
	Name       string
	SQLitePath string
}

// DSN mysql 连接串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// RedisConfig 过滤器缓存配置，Host 为空时不启用缓存
type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type Config struct {
	DB             DBConfig
	Redis          RedisConfig
	FilterCacheTTL time.Duration
	HTTPPort       string
	// WeekStartDay this_week 等关键字的一周起始日
	WeekStartDay    time.Weekday
	DefaultPageSize int
	// MaxTake 单次请求 take 的上限，0 表示不限制
	MaxTake  int
	LogLevel string
}

// LoadConfig 先加载 .env（不存在则忽略），再读取环境变量
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv 只读取环境变量
func FromEnv() (*Config, error) {
	getEnv := func(key, fallback string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	ttl, err := time.ParseDuration(getEnv("FILTER_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid FILTER_CACHE_TTL: %w", err)
	}
	week, err := ParseWeekday(getEnv("WEEK_START_DAY", "monday"))
	if err != nil {
		return nil, err
	}
	pageSize, err := cast.ToIntE(getEnv("DEFAULT_PAGE_SIZE", "20"))
	if err != nil || pageSize <= 0 {
		return nil, fmt.Errorf("invalid DEFAULT_PAGE_SIZE: %q", os.Getenv("DEFAULT_PAGE_SIZE"))
	}
	maxTake, err := cast.ToIntE(getEnv("MAX_TAKE", "500"))
	if err != nil || maxTake < 0 {
		return nil, fmt.Errorf("invalid MAX_TAKE: %q", os.Getenv("MAX_TAKE"))
	}

	cfg := &Config{
		DB: DBConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "mysql")),
			User:       getEnv("DB_USER", "root"),
			Password:   os.Getenv("DB_PASSWORD"),
			Host:       getEnv("DB_HOST", "127.0.0.1"),
			Port:       getEnv("DB_PORT", "3306"),
			Name:       getEnv("DB_NAME", "crm"),
			SQLitePath: getEnv("SQLITE_PATH", "./criteria.db"),
		},
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		FilterCacheTTL:  ttl,
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		WeekStartDay:    week,
		DefaultPageSize: pageSize,
		MaxTake:         maxTake,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	if cfg.DB.Driver != "mysql" && cfg.DB.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DB.Driver)
	}
	return cfg, nil
}

// ParseWeekday 接受英文全称或前三个字母
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Monday, fmt.Errorf("invalid WEEK_START_DAY: %q", s)
}
