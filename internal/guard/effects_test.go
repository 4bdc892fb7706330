package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/PortNumber53/tubeshelf/backend/internal/realtime"
	"github.com/PortNumber53/tubeshelf/backend/internal/session"
	"github.com/stretchr/testify/assert"
)

type fakeInvalidator struct {
	users []string
	err   error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, userID string) error {
	f.users = append(f.users, userID)
	return f.err
}

type sent struct {
	userID, contextID string
	ev                realtime.Event
}

type fakeSender struct{ sent []sent }

func (f *fakeSender) SendToContext(userID, contextID string, ev realtime.Event) {
	f.sent = append(f.sent, sent{userID, contextID, ev})
}

func TestSignOutEffects(t *testing.T) {
	lists, hub := &fakeInvalidator{}, &fakeSender{}
	l := SignOutEffects(lists, hub)

	l(context.Background(), session.Change{Event: session.SignedIn, UserID: "u1", ContextID: "c1"})
	assert.Empty(t, lists.users)
	assert.Empty(t, hub.sent)

	l(context.Background(), session.Change{Event: session.SignedOut, UserID: "u1", ContextID: "c1"})
	assert.Equal(t, []string{"u1"}, lists.users)
	if assert.Len(t, hub.sent, 1) {
		assert.Equal(t, "c1", hub.sent[0].contextID)
		assert.Equal(t, realtime.EventNavigate, hub.sent[0].ev.Type)
		assert.Equal(t, "/", hub.sent[0].ev.Path)
	}
}

func TestSignOutEffects_CacheErrorStillNavigates(t *testing.T) {
	lists, hub := &fakeInvalidator{err: errors.New("down")}, &fakeSender{}
	SignOutEffects(lists, hub)(context.Background(), session.Change{Event: session.SignedOut, UserID: "u1", ContextID: "c1"})
	assert.Len(t, hub.sent, 1)
}
