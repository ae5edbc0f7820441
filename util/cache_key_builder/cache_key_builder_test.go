package cache_key_builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type owner struct {
	ID uint
}

type savedFilter struct {
	ID       uint   `json:"id"`
	Resource string `json:"resource"`
	OwnerID  *uint  `gorm:"column:user_id"`
	Owner    *owner
	secret   string
}

func TestTemplateKeyBuilder(t *testing.T) {
	uid := uint(7)
	f := &savedFilter{ID: 42, Resource: "contacts", OwnerID: &uid, Owner: &owner{ID: 7}}

	key, err := NewTemplateKeyBuilder[savedFilter]("criteria:filter:{id}").BuildKey(f)
	require.NoError(t, err)
	assert.Equal(t, "criteria:filter:42", key)

	key, err = NewTemplateKeyBuilder[savedFilter]("criteria:filters:{resource}:{user_id}").BuildKey(f)
	require.NoError(t, err)
	assert.Equal(t, "criteria:filters:contacts:7", key)

	key, err = NewTemplateKeyBuilder[savedFilter]("owner:{Owner.ID}").BuildKey(f)
	require.NoError(t, err)
	assert.Equal(t, "owner:7", key)

	system := &savedFilter{ID: 1, Resource: "contacts"}
	key, err = NewTemplateKeyBuilder[savedFilter]("criteria:filters:{resource}:{user_id}").BuildKey(system)
	require.NoError(t, err)
	assert.Equal(t, "criteria:filters:contacts:null", key)
}

func TestTemplateKeyBuilderErrors(t *testing.T) {
	f := &savedFilter{ID: 1, secret: "x"}

	_, err := NewTemplateKeyBuilder[savedFilter]("filter:{missing}").BuildKey(f)
	assert.Error(t, err)

	_, err = NewTemplateKeyBuilder[savedFilter]("filter:{secret}").BuildKey(f)
	assert.Error(t, err)

	_, err = NewTemplateKeyBuilder[savedFilter]("owner:{Owner.ID}").BuildKey(f)
	assert.Error(t, err)

	_, err = NewTemplateKeyBuilder[savedFilter]("filter:{id}").BuildKey(nil)
	assert.Error(t, err)

	assert.Panics(t, func() {
		NewTemplateKeyBuilder[savedFilter]("filter:{missing}").MustBuildKey(f)
	})
}
