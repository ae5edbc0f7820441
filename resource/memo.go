package resource

import (
	"sync"

	"github.com/google/uuid"
)

// Memo 单次操作（一次请求、一次批量导入）范围内的记忆化缓存。
// 以代际令牌区分，Reset 后旧结果全部失效，不跨操作共享
type Memo struct {
	mu     sync.Mutex
	token  string
	values map[string]memoEntry
	hits   int
}

type memoEntry struct {
	value interface{}
	err   error
}

// NewMemo 创建新一代缓存
func NewMemo() *Memo {
	return &Memo{token: uuid.NewString(), values: make(map[string]memoEntry)}
}

// Token 当前代际令牌
func (m *Memo) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Hits 命中次数
func (m *Memo) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

// Reset 开启新一代，丢弃全部结果
func (m *Memo) Reset() {
	m.mu.Lock()
	m.token = uuid.NewString()
	m.values = make(map[string]memoEntry)
	m.hits = 0
	m.mu.Unlock()
}

// Remember 返回 key 的缓存结果，没有则调用 fn 并记录（错误同样记录）。
// m 为 nil 时直接调用 fn
func (m *Memo) Remember(key string, fn func() (interface{}, error)) (interface{}, error) {
	if m == nil {
		return fn()
	}

	m.mu.Lock()
	if e, ok := m.values[key]; ok {
		m.hits++
		m.mu.Unlock()
		return e.value, e.err
	}
	token := m.token
	m.mu.Unlock()

	v, err := fn()

	m.mu.Lock()
	// fn 执行期间发生 Reset 时不写回
	if m.token == token {
		m.values[key] = memoEntry{value: v, err: err}
	}
	m.mu.Unlock()
	return v, err
}

// ResolveField 记忆化的字段解析
func (c *Config) ResolveField(memo *Memo, name string) (FieldAdapter, error) {
	v, err := memo.Remember("field:"+c.name+":"+name, func() (interface{}, error) {
		return c.Field(name)
	})
	if err != nil {
		return FieldAdapter{}, err
	}
	return v.(FieldAdapter), nil
}
