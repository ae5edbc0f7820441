package resource

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrResourceNotFound 未注册的资源
var ErrResourceNotFound = errors.New("resource not found")

// Registry 资源配置表。启动阶段注册，Freeze 之后只读
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*Config
	frozen    bool
}

func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]*Config)}
}

// Register 注册资源，冻结后返回错误
func (r *Registry) Register(cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("resource registry is frozen, cannot register %s", cfg.Name())
	}
	if _, dup := r.resources[cfg.Name()]; dup {
		return fmt.Errorf("resource %s already registered", cfg.Name())
	}
	r.resources[cfg.Name()] = cfg
	return nil
}

// Freeze 结束启动阶段
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Get 按名称获取资源
func (r *Registry) Get(name string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.resources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	return cfg, nil
}

// Names 已注册的资源名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.resources))
	for name := range r.resources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
