package relay

import (
	"context"
	"errors"
	"fmt"

	"tg-relaybot/internal/gateway"
	"tg-relaybot/internal/logger"
	"tg-relaybot/internal/models"
	"tg-relaybot/internal/storage"
)

// Outcome is the routing decision for an inbound message.
type Outcome int

const (
	// RoutedToUser means the sender is an admin and the message went to
	// their session's target user.
	RoutedToUser Outcome = iota
	// RoutedToAdmin means the sender is a session's target user and the
	// message went to the session's admin.
	RoutedToAdmin
	// NoActiveSession means the sender has no session; the caller decides
	// the fallback.
	NoActiveSession
	// SkippedConfiguring means the sender is mid-way through a
	// configuration dialog and routing is suppressed.
	SkippedConfiguring
)

// RouteResult reports where a message was routed.
type RouteResult struct {
	Outcome Outcome
	PeerID  int64
}

// RouteMessage forwards an inbound message to the sender's session peer.
// Decision order: admin with an active session first, then target user of
// a session, then NoActiveSession. A delivery failure is returned as a
// *DeliveryError and never ends the session.
func (e *Engine) RouteMessage(ctx context.Context, sender Person, content gateway.Content) (*RouteResult, error) {
	mode, err := e.Store.InteractionMode(sender.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking interaction mode: %w", err)
	}
	if mode == models.ModeConfiguring {
		return &RouteResult{Outcome: SkippedConfiguring}, nil
	}

	if e.IsSudo(sender.ID) {
		session, err := e.Store.ActiveSessionForAdmin(sender.ID)
		if err == nil {
			result := &RouteResult{Outcome: RoutedToUser, PeerID: session.TargetUserID}
			if err := e.forward(ctx, session, sender, content, true); err != nil {
				return result, err
			}
			return result, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("loading admin session: %w", err)
		}
	}

	session, err := e.Store.ActiveSessionForUser(sender.ID)
	if err == nil {
		result := &RouteResult{Outcome: RoutedToAdmin, PeerID: session.AdminID}
		if err := e.forward(ctx, session, sender, content, false); err != nil {
			return result, err
		}
		return result, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading user session: %w", err)
	}

	return &RouteResult{Outcome: NoActiveSession}, nil
}

// forward delivers the content to the session peer with a sender label
// and logs the message against the session.
func (e *Engine) forward(ctx context.Context, session *models.ChatSession, sender Person, content gateway.Content, fromAdmin bool) error {
	peerID := session.TargetUserID
	if !fromAdmin {
		peerID = session.AdminID
	}

	label := senderLabel(sender, fromAdmin)
	decorated, followUp := decorate(label, content)

	if err := e.Gateway.Send(ctx, peerID, decorated); err != nil {
		logger.Errorf("Failed to forward message in session %s to %d: %v", session.ID, peerID, err)
		return &DeliveryError{PeerID: peerID, Err: err}
	}
	if followUp != "" {
		if err := e.Gateway.Send(ctx, peerID, gateway.Content{Kind: gateway.KindText, Text: followUp}); err != nil {
			logger.Errorf("Failed to send label for session %s to %d: %v", session.ID, peerID, err)
			return &DeliveryError{PeerID: peerID, Err: err}
		}
	}

	if err := e.Store.AppendMessage(session.ID, fromAdmin, content.Summary()); err != nil {
		// The message already reached the peer; a failed log append is
		// not a routing failure.
		logger.Errorf("Failed to log message for session %s: %v", session.ID, err)
	}

	return nil
}

// senderLabel builds the HTML identity tag prepended to relayed content.
func senderLabel(sender Person, fromAdmin bool) string {
	if fromAdmin {
		name := sender.Name
		if name == "" {
			name = "Admin"
		}
		return fmt.Sprintf("<b>👨‍💼 %s:</b> ", name)
	}
	name := sender.Name
	if name == "" {
		name = "User"
	}
	username := ""
	if sender.Username != "" {
		username = " @" + sender.Username
	}
	return fmt.Sprintf("<b>👤 %s%s (ID: %d):</b>\n", name, username, sender.ID)
}

// decorate applies the sender label to the content. Stickers cannot carry
// captions, so the label is returned as a follow-up text message instead.
// Unsupported kinds relay as a placeholder notice rather than being
// dropped silently.
func decorate(label string, content gateway.Content) (gateway.Content, string) {
	switch content.Kind {
	case gateway.KindText:
		content.Text = label + content.Text
		return content, ""
	case gateway.KindSticker:
		return content, label + "[Sticker]"
	case gateway.KindOther:
		return gateway.Content{Kind: gateway.KindText, Text: label + "[Unsupported message type]"}, ""
	default:
		caption := content.Caption
		if caption == "" {
			caption = content.Summary()
		}
		content.Caption = label + caption
		return content, ""
	}
}
