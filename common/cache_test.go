package common_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/guarzo/gymapi/common"
)

func TestCacheStore(t *testing.T) {
	cache := common.NewCacheStore()

	// 1) Set + Get
	cache.Set("foo", []byte("bar"), time.Hour)
	val, found := cache.Get("foo")
	assert.True(t, found)
	assert.Equal(t, "bar", string(val))

	// 2) Delete
	cache.Delete("foo")
	_, found = cache.Get("foo")
	assert.False(t, found)

	// 3) Flush
	cache.Set("a", []byte("1"), time.Hour)
	cache.Set("b", []byte("2"), time.Hour)
	cache.Flush()
	_, found = cache.Get("a")
	assert.False(t, found)
	_, found = cache.Get("b")
	assert.False(t, found)
}

func TestCacheStore_Expiration(t *testing.T) {
	cache := common.NewCacheStore()

	cache.Set("short", []byte("x"), time.Millisecond)
	assert.Eventually(t, func() bool {
		_, found := cache.Get("short")
		return !found
	}, time.Second, 5*time.Millisecond)
}
