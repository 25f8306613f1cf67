package objectstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildKey(t *testing.T) {
	key := BuildKey("prod-1", "front", 1700000000000, "jpg")
	assert.Equal(t, "products/prod-1_front_1700000000000.jpg", key)
}

func TestNormalizeLegacyKeyOriginals(t *testing.T) {
	assert.Equal(t, "products/foo.jpg", NormalizeLegacyKey("/originals/foo.jpg"))
}

func TestNormalizeLegacyKeyImages(t *testing.T) {
	assert.Equal(t, "products/bar.png", NormalizeLegacyKey("/images/bar.png"))
}

func TestNormalizeLegacyKeyStripsSchemeHost(t *testing.T) {
	got := NormalizeLegacyKey("https://cdn.example.com:9000/originals/foo.jpg")
	assert.Equal(t, "products/foo.jpg", got)
}

func TestNormalizeLegacyKeyCurrentSchemeUnchanged(t *testing.T) {
	got := NormalizeLegacyKey("products/prod-1_front_123.jpg")
	assert.Equal(t, "products/prod-1_front_123.jpg", got)
}

func TestIsLegacyKey(t *testing.T) {
	assert.True(t, IsLegacyKey("/images/a.jpg"))
	assert.False(t, IsLegacyKey("products/a.jpg"))
}

func TestFakeStorePutAndStat(t *testing.T) {
	s := NewFakeStore("")
	ctx := t.Context()

	exists, err := s.Stat(ctx, "products/a.jpg")
	assert.NoError(t, err)
	assert.False(t, exists)

	url, err := s.Put(ctx, "products/a.jpg", strings.NewReader("hello"), 5, "image/jpeg")
	assert.NoError(t, err)
	assert.Contains(t, url, "products/a.jpg")

	exists, err = s.Stat(ctx, "products/a.jpg")
	assert.NoError(t, err)
	assert.True(t, exists)
}
