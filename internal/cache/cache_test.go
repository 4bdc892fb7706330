package cache

import (
	"context"
	"testing"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLists(t *testing.T) (*VideoLists, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewVideoLists(client, time.Minute), mr
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestVideoLists_GetSetInvalidate(t *testing.T) {
	lists, mr := setupTestLists(t)
	ctx := context.Background()

	_, ok, err := lists.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	in := []models.Video{{ID: "v1", UserID: "u1", Title: "One", UploadDate: time.Now().UTC().Truncate(time.Second)}}
	require.NoError(t, lists.Set(ctx, "u1", in))
	assert.True(t, mr.Exists("tubeshelf:videos:u1"))
	assert.Equal(t, time.Minute, mr.TTL("tubeshelf:videos:u1"))

	got, ok, err := lists.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in[0].ID, got[0].ID)
	assert.True(t, in[0].UploadDate.Equal(got[0].UploadDate))

	require.NoError(t, lists.Invalidate(ctx, "u1"))
	assert.False(t, mr.Exists("tubeshelf:videos:u1"))
}

func TestVideoLists_ApplyMergesCachedList(t *testing.T) {
	lists, _ := setupTestLists(t)
	ctx := context.Background()

	require.NoError(t, lists.Set(ctx, "u1", []models.Video{{ID: "b"}, {ID: "a"}}))

	require.NoError(t, lists.Apply(ctx, "u1", models.VideoChange{Type: models.ChangeInsert, Video: models.Video{ID: "c"}}))
	require.NoError(t, lists.Apply(ctx, "u1", models.VideoChange{Type: models.ChangeDelete, Video: models.Video{ID: "a"}}))
	require.NoError(t, lists.Apply(ctx, "u1", models.VideoChange{Type: models.ChangeUpdate, Video: models.Video{ID: "b", Title: "B2"}}))

	got, ok, err := lists.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "B2", got[1].Title)
}

func TestVideoLists_ApplyWithoutCachedList(t *testing.T) {
	lists, mr := setupTestLists(t)
	require.NoError(t, lists.Apply(context.Background(), "u2", models.VideoChange{Type: models.ChangeInsert, Video: models.Video{ID: "x"}}))
	assert.False(t, mr.Exists("tubeshelf:videos:u2"))
}

func TestVideoLists_GetCorruptEntry(t *testing.T) {
	lists, mr := setupTestLists(t)
	require.NoError(t, mr.Set("tubeshelf:videos:u1", "{not json"))
	_, ok, err := lists.Get(context.Background(), "u1")
	assert.Error(t, err)
	assert.False(t, ok)
}
