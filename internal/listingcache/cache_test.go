package listingcache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trunov/freshconnect-images/internal/encoder"
	"github.com/trunov/freshconnect-images/internal/entities"
	"github.com/trunov/freshconnect-images/internal/kvstore"
)

type fakeExpiry struct {
	expired map[string]bool
	err     error
}

func (f fakeExpiry) IsExpired(_ context.Context, handle string) (bool, error) {
	return f.expired[handle], f.err
}

const handle = "blob:https://admin.example.com/6f1c2a4e-0d1b-4c55-9a3e-2b7f0c9d8e11"

func stored(t *testing.T, s kvstore.Store) []entities.Listing {
	t.Helper()
	raw, err := s.Get(context.Background(), Key)
	require.NoError(t, err)
	var out []entities.Listing
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestSaveCleansImages(t *testing.T) {
	s := kvstore.NewMemory()
	c := New(s, nil, "", zap.NewNop())

	err := c.Save(context.Background(), []entities.Listing{{
		ID:     "l1",
		Title:  "Bakery bundle",
		Images: []string{"  https://cdn.example.com/a.jpg  ", "https://api.example.com/" + handle},
	}})
	require.NoError(t, err)

	got := stored(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg", handle}, got[0].Images)
}

func TestSaveRejectsInvalidListing(t *testing.T) {
	c := New(kvstore.NewMemory(), nil, "", zap.NewNop())
	err := c.Save(context.Background(), []entities.Listing{{Title: "no id"}})
	assert.Error(t, err)
}

func TestLoadEmpty(t *testing.T) {
	views, err := New(kvstore.NewMemory(), nil, "", zap.NewNop()).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestLoadRepairsAndWritesBack(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemory()
	doubled := "https://api.example.com/https://api.example.com/" + handle
	raw, _ := json.Marshal([]entities.Listing{{ID: "l1", Title: "Soup", Images: []string{doubled}}})
	require.NoError(t, s.Set(ctx, Key, string(raw)))

	views, err := New(s, fakeExpiry{}, "", zap.NewNop()).Load(ctx)
	require.NoError(t, err)

	require.Len(t, views, 1)
	require.Len(t, views[0].Images, 1)
	assert.Equal(t, "ephemeral", views[0].Images[0].Kind)
	assert.Equal(t, handle, views[0].Images[0].Src)
	assert.False(t, views[0].Images[0].Expired)

	assert.Equal(t, []string{handle}, stored(t, s)[0].Images)
}

func TestLoadFlagsExpiredReferences(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemory()
	c := New(s, fakeExpiry{expired: map[string]bool{handle: true}}, "", zap.NewNop())
	require.NoError(t, c.Save(ctx, []entities.Listing{{ID: "l1", Title: "Salad", Images: []string{handle}}}))

	views, err := c.Load(ctx)
	require.NoError(t, err)

	img := views[0].Images[0]
	assert.True(t, img.Expired)
	assert.Equal(t, handle, img.Stored)
	assert.Equal(t, encoder.Placeholder(entities.ReasonExpired, "").String(), img.Src)
	// The handle itself stays persisted.
	assert.Equal(t, []string{handle}, stored(t, s)[0].Images)
}

func TestLoadExpiryErrorTreatsAsLive(t *testing.T) {
	ctx := context.Background()
	c := New(kvstore.NewMemory(), fakeExpiry{err: errors.New("store down")}, "", zap.NewNop())
	require.NoError(t, c.Save(ctx, []entities.Listing{{ID: "l1", Title: "Salad", Images: []string{handle}}}))

	views, err := c.Load(ctx)
	require.NoError(t, err)
	assert.False(t, views[0].Images[0].Expired)
	assert.Equal(t, handle, views[0].Images[0].Src)
}

func TestLoadResolvesServerPaths(t *testing.T) {
	ctx := context.Background()
	c := New(kvstore.NewMemory(), nil, "https://api.example.com/", zap.NewNop())
	require.NoError(t, c.Save(ctx, []entities.Listing{{ID: "l1", Title: "Bread", Images: []string{"/uploads/bread.jpg", "garbage value"}}}))

	views, err := c.Load(ctx)
	require.NoError(t, err)

	imgs := views[0].Images
	assert.Equal(t, "server_path", imgs[0].Kind)
	assert.Equal(t, "https://api.example.com/uploads/bread.jpg", imgs[0].Src)
	assert.True(t, strings.HasPrefix(imgs[1].Src, "data:image/svg+xml;base64,"))
}

func TestLoadCorruptValue(t *testing.T) {
	ctx := context.Background()
	s := kvstore.NewMemory()
	require.NoError(t, s.Set(ctx, Key, "{not json"))

	_, err := New(s, nil, "", zap.NewNop()).Load(ctx)
	assert.Error(t, err)
}
