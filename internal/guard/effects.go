package guard

import (
	"context"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/realtime"
	"github.com/PortNumber53/tubeshelf/backend/internal/session"
)

type ListInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type ContextSender interface {
	SendToContext(userID, contextID string, ev realtime.Event)
}

// SignOutEffects returns a session listener that, on sign-out, drops the
// user's cached list and sends the signed-out context back to the landing
// page.
func SignOutEffects(lists ListInvalidator, hub ContextSender) session.Listener {
	log := logging.Component("guard")
	return func(ctx context.Context, ch session.Change) {
		if ch.Event != session.SignedOut || ch.UserID == "" {
			return
		}
		if lists != nil {
			if err := lists.Invalidate(ctx, ch.UserID); err != nil {
				log.Warn().Err(err).Str("userId", ch.UserID).Msg("list cache clear failed")
			}
		}
		if hub != nil {
			hub.SendToContext(ch.UserID, ch.ContextID, realtime.Event{Type: realtime.EventNavigate, Path: PathLanding})
		}
	}
}
