package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"CriteriaManager/resource"
	"CriteriaManager/service"
	"CriteriaManager/util/query_error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	highScore = `{"type": "rule", "fieldType": "numeric", "fieldName": "score", "operator": "greater", "operand": 7}`
	mine      = `{"condition": "and", "children": [
		{"type": "rule", "query": {"type": "numeric", "rule": "owner_is_me", "operator": "equal", "value": 1}}
	]}`
)

func newStore(t *testing.T, opts ...service.StoreOption) (*service.FilterStore, *gorm.DB) {
	t.Helper()
	db := openDB(t)
	store := service.NewFilterStore(db, newRegistry(t), opts...)
	require.NoError(t, store.Migrate(context.Background()))
	return store, db
}

func TestSaveStoresCanonicalRules(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	f := &service.Filter{Name: "Hot", Resource: "contacts", UserID: uintPtr(1), Rules: highScore}
	require.NoError(t, store.Save(ctx, f))
	require.NotZero(t, f.ID)
	assert.JSONEq(t,
		`{"condition":"and","children":[{"type":"rule","query":{"type":"numeric","rule":"score","operator":"greater","value":7}}]}`,
		f.Rules)

	got, err := store.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Rules, got.Rules)
	assert.Equal(t, "Hot", got.Name)
}

func TestSaveValidatesRules(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	err := store.Save(ctx, &service.Filter{Name: "x", Resource: "deals", Rules: highScore})
	assert.ErrorIs(t, err, resource.ErrResourceNotFound)

	err = store.Save(ctx, &service.Filter{Name: "x", Resource: "contacts",
		Rules: `{"type": "rule", "query": {"type": "text", "rule": "nickname", "operator": "equal", "value": "a"}}`})
	kind, _ := query_error.KindOf(err)
	assert.Equal(t, query_error.UnknownField, kind)

	err = store.Save(ctx, &service.Filter{Name: "x", Resource: "contacts",
		Rules: `{"type": "rule", "query": {"type": "numeric", "rule": "score", "operator": "contains", "value": 1}}`})
	kind, _ = query_error.KindOf(err)
	assert.Equal(t, query_error.IllegalOperator, kind)

	err = store.Save(ctx, &service.Filter{Name: "x", Resource: "contacts", Rules: `{"condition": "or", "children": []}`})
	kind, _ = query_error.KindOf(err)
	assert.Equal(t, query_error.EmptyGroup, kind)
}

func TestVolatileFilterCannotBeShared(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	err := store.Save(ctx, &service.Filter{Name: "Mine", Resource: "contacts", UserID: uintPtr(1), Rules: mine, IsShared: true})
	assert.ErrorIs(t, err, service.ErrVolatileShared)

	private := &service.Filter{Name: "Mine", Resource: "contacts", UserID: uintPtr(1), Rules: mine}
	require.NoError(t, store.Save(ctx, private))

	private.IsShared = true
	assert.ErrorIs(t, store.Save(ctx, private), service.ErrVolatileShared)
}

func TestReadonlyFilterCannotBeUpdated(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	f := &service.Filter{Name: "Locked", Resource: "contacts", Rules: highScore, IsReadonly: true}
	require.NoError(t, store.Save(ctx, f))

	f.Name = "Changed"
	assert.ErrorIs(t, store.Save(ctx, f), service.ErrReadonlyFilter)

	assert.ErrorIs(t, store.Save(ctx, &service.Filter{ID: 404, Name: "x", Resource: "contacts", Rules: highScore}),
		service.ErrFilterNotFound)
}

func TestDeleteFilter(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	system := &service.Filter{Name: "All hot", Resource: "contacts", Rules: highScore}
	require.NoError(t, store.Save(ctx, system))
	assert.ErrorIs(t, store.Delete(ctx, system.ID), service.ErrSystemFilterDelete)

	own := &service.Filter{Name: "Hot", Resource: "contacts", UserID: uintPtr(2), Rules: highScore}
	require.NoError(t, store.Save(ctx, own))
	require.NoError(t, store.MarkDefault(ctx, own.ID, "list", uintPtr(2)))
	require.NoError(t, store.Delete(ctx, own.ID))

	_, err := store.Get(ctx, own.ID)
	assert.ErrorIs(t, err, service.ErrFilterNotFound)
	_, err = store.DefaultFor(ctx, "contacts", "list", 2)
	assert.ErrorIs(t, err, service.ErrFilterNotFound)

	assert.ErrorIs(t, store.Delete(ctx, own.ID), service.ErrFilterNotFound)
}

func TestFilterCache(t *testing.T) {
	cache := newMemoryCache()
	store, db := newStore(t, service.WithCache(cache, time.Minute))
	ctx := context.Background()

	f := &service.Filter{Name: "Hot", Resource: "contacts", UserID: uintPtr(1), Rules: highScore}
	require.NoError(t, store.Save(ctx, f))

	key := fmt.Sprintf("criteria:filter:%d", f.ID)
	_, err := store.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return cache.has(key) }, time.Second, 10*time.Millisecond)

	// 缓存命中时不回源
	require.NoError(t, db.Model(&service.Filter{}).Where("id = ?", f.ID).Update("name", "Renamed").Error)
	got, err := store.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hot", got.Name)

	// 保存后失效
	got.Name = "Hotter"
	require.NoError(t, store.Save(ctx, got))
	assert.False(t, cache.has(key))
	got, err = store.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hotter", got.Name)
}

func TestFilterCacheDropsStaleWriteBack(t *testing.T) {
	cache := newGatedCache()
	store, _ := newStore(t, service.WithCache(cache, time.Minute))
	ctx := context.Background()

	f := &service.Filter{Name: "Hot", Resource: "contacts", UserID: uintPtr(1), Rules: highScore}
	require.NoError(t, store.Save(ctx, f))
	key := fmt.Sprintf("criteria:filter:%d", f.ID)
	assert.Equal(t, key, receive(t, cache.deleted))

	// 未命中读到旧行，回填卡在 Set 中
	_, err := store.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, key, receive(t, cache.entered))

	f.Name = "Hotter"
	require.NoError(t, store.Save(ctx, f))
	assert.Equal(t, key, receive(t, cache.deleted))

	// 放行后旧值被撤销
	close(cache.release)
	assert.Equal(t, key, receive(t, cache.deleted))
	assert.False(t, cache.has(key))

	got, err := store.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hotter", got.Name)
}

func TestFilterCacheDeleteWinsOverWriteBack(t *testing.T) {
	cache := newGatedCache()
	store, _ := newStore(t, service.WithCache(cache, time.Minute))
	ctx := context.Background()

	f := &service.Filter{Name: "Hot", Resource: "contacts", UserID: uintPtr(1), Rules: highScore}
	require.NoError(t, store.Save(ctx, f))
	receive(t, cache.deleted)

	_, err := store.Get(ctx, f.ID)
	require.NoError(t, err)
	receive(t, cache.entered)

	require.NoError(t, store.Delete(ctx, f.ID))
	receive(t, cache.deleted)
	close(cache.release)
	receive(t, cache.deleted)

	_, err = store.Criterion(ctx, f.ID, "contacts")
	assert.ErrorIs(t, err, service.ErrFilterNotFound)
}

func TestDefaultFilters(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	system := &service.Filter{Name: "Hot", Resource: "contacts", Rules: highScore}
	own := &service.Filter{Name: "Mine", Resource: "contacts", UserID: uintPtr(1), Rules: mine}
	require.NoError(t, store.Save(ctx, system))
	require.NoError(t, store.Save(ctx, own))

	require.NoError(t, store.MarkDefault(ctx, system.ID, "list", nil))
	require.NoError(t, store.MarkDefault(ctx, own.ID, "list", uintPtr(1)))

	got, err := store.DefaultFor(ctx, "contacts", "list", 1)
	require.NoError(t, err)
	assert.Equal(t, own.ID, got.ID)

	got, err = store.DefaultFor(ctx, "contacts", "list", 2)
	require.NoError(t, err)
	assert.Equal(t, system.ID, got.ID)

	// 同一视图再次标记替换旧值
	require.NoError(t, store.MarkDefault(ctx, system.ID, "list", uintPtr(1)))
	got, err = store.DefaultFor(ctx, "contacts", "list", 1)
	require.NoError(t, err)
	assert.Equal(t, system.ID, got.ID)

	_, err = store.DefaultFor(ctx, "contacts", "board", 1)
	assert.ErrorIs(t, err, service.ErrFilterNotFound)
	assert.ErrorIs(t, store.MarkDefault(ctx, 404, "list", nil), service.ErrFilterNotFound)
}

func TestVisibleFilters(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for _, f := range []*service.Filter{
		{Name: "A system", Resource: "contacts", Rules: highScore},
		{Name: "B shared", Resource: "contacts", UserID: uintPtr(2), Rules: highScore, IsShared: true},
		{Name: "C private", Resource: "contacts", UserID: uintPtr(2), Rules: mine},
		{Name: "D mine", Resource: "contacts", UserID: uintPtr(1), Rules: mine},
	} {
		require.NoError(t, store.Save(ctx, f))
	}

	visible, err := store.Visible(ctx, "contacts", 1)
	require.NoError(t, err)
	var got []string
	for _, f := range visible {
		got = append(got, f.Name)
	}
	assert.Equal(t, []string{"A system", "B shared", "D mine"}, got)
}

func TestFilterCriterionRuns(t *testing.T) {
	store, db := newStore(t)
	seedContacts(t, db)
	ctx := context.Background()

	f := &service.Filter{Name: "Hot", Resource: "contacts", UserID: uintPtr(1), Rules: highScore}
	require.NoError(t, store.Save(ctx, f))

	c, err := store.Criterion(ctx, f.ID, "contacts")
	require.NoError(t, err)
	res, err := newManager(db).List(ctx, nil, nil, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada", "Grace"}, names(res.Data))

	_, err = store.Criterion(ctx, f.ID, "companies")
	assert.ErrorIs(t, err, service.ErrFilterNotFound)
}
