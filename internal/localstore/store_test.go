package localstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLastPath_DefaultsToLanding(t *testing.T) {
	s := openTemp(t)
	assert.Equal(t, "/", s.LastPath())

	require.NoError(t, s.SetLastPath("/video/v1"))
	assert.Equal(t, "/video/v1", s.LastPath())

	require.NoError(t, s.SetString(KeyLastPath, "garbage"))
	assert.Equal(t, "/", s.LastPath())
}

func TestContextID_StableAcrossCalls(t *testing.T) {
	s := openTemp(t)
	a, err := s.ContextID()
	require.NoError(t, err)
	b, err := s.ContextID()
	require.NoError(t, err)
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
}

func TestCookieConsent(t *testing.T) {
	s := openTemp(t)
	_, ok := s.CookieConsent()
	assert.False(t, ok)

	require.NoError(t, s.SetCookieConsent(true))
	c, ok := s.CookieConsent()
	require.True(t, ok)
	assert.True(t, c.Accepted)
}

func TestDrafts_RoundTripAndDelete(t *testing.T) {
	s := openTemp(t)
	key := EditDraftKey("v1")
	assert.Equal(t, "edit_draft:v1", key)

	require.NoError(t, s.SetJSON(key, Draft{Title: "t", VideoURL: "https://youtu.be/abc"}))
	var d Draft
	require.NoError(t, s.GetJSON(key, &d))
	assert.Equal(t, "t", d.Title)

	require.NoError(t, s.Delete(key))
	assert.ErrorIs(t, s.GetJSON(key, &d), ErrNotFound)
}

func TestComments_NewestFirstFilteredByVideo(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	_, err := s.AddComment("v1", "ann", "first")
	require.NoError(t, err)
	_, err = s.AddComment("v2", "bob", "other video")
	require.NoError(t, err)
	_, err = s.AddComment("v1", "", "second")
	require.NoError(t, err)

	got, err := s.Comments("v1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Text)
	assert.Equal(t, "Anonymous", got[0].Author)
	assert.Equal(t, "first", got[1].Text)

	_, err = s.AddComment("v1", "ann", "   ")
	assert.Error(t, err)
}
