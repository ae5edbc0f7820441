package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"CriteriaManager/resource"
	"CriteriaManager/service"
	ft "CriteriaManager/util/filter_translator"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Company struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

type Stage struct {
	ID         uint `gorm:"primaryKey"`
	PipelineID uint
	Name       string
}

type Contact struct {
	ID        uint `gorm:"primaryKey"`
	FirstName string
	LastName  string
	Score     int
	UserID    uint
	CompanyID *uint
	Company   *Company
}

func contactResource() *resource.Config {
	return resource.MustNew(resource.Definition{
		Name:  "contacts",
		Table: "contacts",
		Fields: []resource.FieldAdapter{
			{Name: "first_name", Type: ft.TypeText, Column: "first_name"},
			{Name: "last_name", Type: ft.TypeText, Column: "last_name"},
			{Name: "score", Type: ft.TypeNumeric, Column: "score"},
			{Name: "owner_is_me", Type: ft.TypeNumeric, Column: "user_id", Volatile: true},
		},
		SearchFields: []resource.SearchField{
			{Name: "first_name", Mode: resource.MatchLike},
			{Name: "last_name", Mode: resource.MatchLike},
			{Name: "company.name", Mode: resource.MatchLike},
		},
		Relations: []resource.Relation{{
			Name: "company", Kind: resource.BelongsTo, Table: "companies", ForeignKey: "company_id",
			Preload: "Company", Fields: []resource.FieldAdapter{{Name: "name", Type: ft.TypeText, Column: "name"}},
		}},
	})
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&Company{}, &Contact{}, &Stage{}))
	return db
}

// seedContacts 五个联系人，Ada 与 Alan 属于 Acme
func seedContacts(t *testing.T, db *gorm.DB) (Company, []Contact) {
	t.Helper()
	acme := Company{Name: "Acme"}
	require.NoError(t, db.Create(&acme).Error)
	contacts := []Contact{
		{FirstName: "Ada", LastName: "Lovelace", Score: 9, UserID: 1, CompanyID: &acme.ID},
		{FirstName: "Alan", LastName: "Turing", Score: 7, UserID: 2, CompanyID: &acme.ID},
		{FirstName: "Grace", LastName: "Hopper", Score: 8, UserID: 1},
		{FirstName: "Edsger", LastName: "Dijkstra", Score: 6, UserID: 2},
		{FirstName: "Barbara", LastName: "Liskov", Score: 5, UserID: 1},
	}
	require.NoError(t, db.Create(&contacts).Error)
	return acme, contacts
}

func newManager(db *gorm.DB, opts ...service.ManagerOption) *service.ServiceManager[Contact] {
	opts = append([]service.ManagerOption{service.WithDB(db)}, opts...)
	return service.NewServiceManager(Contact{}, contactResource(), opts...)
}

func newRegistry(t *testing.T) *resource.Registry {
	t.Helper()
	reg := resource.NewRegistry()
	require.NoError(t, reg.Register(contactResource()))
	reg.Freeze()
	return reg
}

// memoryCache 以 JSON 往返模拟 redis
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	sets  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	data, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return service.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = data
	c.sets++
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.items, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// gatedCache Set 在放行前阻塞，用于固定回填与失效的先后顺序
type gatedCache struct {
	*memoryCache
	entered chan string
	release chan struct{}
	deleted chan string
}

func newGatedCache() *gatedCache {
	return &gatedCache{
		memoryCache: newMemoryCache(),
		entered:     make(chan string, 8),
		release:     make(chan struct{}),
		deleted:     make(chan string, 8),
	}
}

func (c *gatedCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.entered <- key
	<-c.release
	return c.memoryCache.Set(ctx, key, value, expiration)
}

func (c *gatedCache) Delete(ctx context.Context, keys ...string) error {
	err := c.memoryCache.Delete(ctx, keys...)
	for _, k := range keys {
		c.deleted <- k
	}
	return err
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for cache call")
		return ""
	}
}

func uintPtr(n uint) *uint { return &n }

func intPtr(n int) *int { return &n }
