package relay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tg-relaybot/internal/gateway"
	"tg-relaybot/internal/models"
)

func startSession(t *testing.T, engine *Engine, store *fakeStore) {
	t.Helper()
	store.addUser(userID, "Alice")
	if _, err := engine.StartDirectSession(context.Background(), Person{ID: adminID, Name: "Bob"}, userID); err != nil {
		t.Fatalf("StartDirectSession: %v", err)
	}
}

func TestRouteAdminToUser(t *testing.T) {
	engine, store, _, sender := newTestEngine()
	startSession(t, engine, store)

	result, err := engine.RouteMessage(context.Background(), Person{ID: adminID, Name: "Bob"},
		gateway.Content{Kind: gateway.KindText, Text: "hello"})
	if err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}
	if result.Outcome != RoutedToUser || result.PeerID != userID {
		t.Fatalf("unexpected route result: %+v", result)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent))
	}
	got := sender.sent[0]
	if got.chatID != userID {
		t.Fatalf("expected send to %d, got %d", userID, got.chatID)
	}
	if !strings.Contains(got.content.Text, "Bob") || !strings.HasSuffix(got.content.Text, "hello") {
		t.Fatalf("expected labelled text, got %q", got.content.Text)
	}
}

func TestRouteUserToAdmin(t *testing.T) {
	engine, store, _, sender := newTestEngine()
	startSession(t, engine, store)

	result, err := engine.RouteMessage(context.Background(), Person{ID: userID, Name: "Alice", Username: "alice"},
		gateway.Content{Kind: gateway.KindText, Text: "hi there"})
	if err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}
	if result.Outcome != RoutedToAdmin || result.PeerID != adminID {
		t.Fatalf("unexpected route result: %+v", result)
	}

	got := sender.sent[0]
	if !strings.Contains(got.content.Text, "@alice") || !strings.Contains(got.content.Text, "ID: 42") {
		t.Fatalf("expected sender identity in label, got %q", got.content.Text)
	}
}

func TestRouteNoActiveSession(t *testing.T) {
	engine, store, _, sender := newTestEngine()
	store.addUser(userID, "Alice")

	result, err := engine.RouteMessage(context.Background(), Person{ID: userID},
		gateway.Content{Kind: gateway.KindText, Text: "anyone?"})
	if err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}
	if result.Outcome != NoActiveSession {
		t.Fatalf("expected NoActiveSession, got %v", result.Outcome)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no sends, got %d", len(sender.sent))
	}
}

func TestRouteSkipsConfiguringUser(t *testing.T) {
	engine, store, _, sender := newTestEngine()
	startSession(t, engine, store)
	store.setMode(userID, models.ModeConfiguring)

	result, err := engine.RouteMessage(context.Background(), Person{ID: userID},
		gateway.Content{Kind: gateway.KindText, Text: "step 2 answer"})
	if err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}
	if result.Outcome != SkippedConfiguring {
		t.Fatalf("expected SkippedConfiguring, got %v", result.Outcome)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no sends while configuring, got %d", len(sender.sent))
	}
}

func TestRouteStickerFollowUpLabel(t *testing.T) {
	engine, store, _, sender := newTestEngine()
	startSession(t, engine, store)

	_, err := engine.RouteMessage(context.Background(), Person{ID: adminID, Name: "Bob"},
		gateway.Content{Kind: gateway.KindSticker, FileID: "sticker-1"})
	if err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("expected sticker plus label, got %d sends", len(sender.sent))
	}
	if sender.sent[0].content.Kind != gateway.KindSticker {
		t.Fatalf("expected sticker first, got %v", sender.sent[0].content.Kind)
	}
	if follow := sender.sent[1].content; follow.Kind != gateway.KindText || !strings.Contains(follow.Text, "[Sticker]") {
		t.Fatalf("unexpected follow-up: %+v", follow)
	}
}

func TestRouteUnsupportedKindPlaceholder(t *testing.T) {
	engine, store, _, sender := newTestEngine()
	startSession(t, engine, store)

	_, err := engine.RouteMessage(context.Background(), Person{ID: adminID, Name: "Bob"},
		gateway.Content{Kind: gateway.KindOther})
	if err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}

	got := sender.sent[0].content
	if got.Kind != gateway.KindText || !strings.Contains(got.Text, "[Unsupported message type]") {
		t.Fatalf("expected placeholder text, got %+v", got)
	}
}

func TestRouteMediaCaptionLabel(t *testing.T) {
	engine, store, _, sender := newTestEngine()
	startSession(t, engine, store)

	_, err := engine.RouteMessage(context.Background(), Person{ID: adminID, Name: "Bob"},
		gateway.Content{Kind: gateway.KindPhoto, FileID: "photo-1", Caption: "look"})
	if err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}

	got := sender.sent[0].content
	if !strings.Contains(got.Caption, "Bob") || !strings.HasSuffix(got.Caption, "look") {
		t.Fatalf("expected labelled caption, got %q", got.Caption)
	}
}

func TestRouteDeliveryFailureKeepsSession(t *testing.T) {
	engine, store, _, sender := newTestEngine()
	startSession(t, engine, store)
	sender.failFor[userID] = errors.New("network down")

	result, err := engine.RouteMessage(context.Background(), Person{ID: adminID, Name: "Bob"},
		gateway.Content{Kind: gateway.KindText, Text: "hello"})

	var delivery *DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if delivery.PeerID != userID {
		t.Fatalf("expected failure peer %d, got %d", userID, delivery.PeerID)
	}
	if result == nil || result.Outcome != RoutedToUser {
		t.Fatalf("expected routing decision alongside the failure, got %+v", result)
	}

	// The session survives a delivery failure.
	if _, err := engine.SessionForAdmin(adminID); err != nil {
		t.Fatalf("expected session to remain active, got %v", err)
	}
}

func TestFullConversation(t *testing.T) {
	engine, store, notifier, sender := newTestEngine()
	store.addUser(userID, "Alice")

	created, err := engine.CreateRequest(context.Background(), Person{ID: userID, Name: "Alice"})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if len(notifier.requests) != 2 {
		t.Fatalf("expected both admins notified, got %d", len(notifier.requests))
	}

	if _, err := engine.AcceptRequest(context.Background(), Person{ID: adminID, Name: "Bob"}, created.RequestID); err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}
	if len(notifier.accepted) != 1 || notifier.accepted[0] != userID {
		t.Fatalf("expected acceptance notice to requester, got %v", notifier.accepted)
	}

	result, err := engine.RouteMessage(context.Background(), Person{ID: userID, Name: "Alice"},
		gateway.Content{Kind: gateway.KindText, Text: "hello"})
	if err != nil || result.Outcome != RoutedToAdmin {
		t.Fatalf("user message: result=%+v err=%v", result, err)
	}
	if got := sender.sent[len(sender.sent)-1]; got.chatID != adminID || !strings.Contains(got.content.Text, "Alice") {
		t.Fatalf("expected tagged user message at admin, got %+v", got)
	}

	result, err = engine.RouteMessage(context.Background(), Person{ID: adminID, Name: "Bob"},
		gateway.Content{Kind: gateway.KindText, Text: "hi"})
	if err != nil || result.Outcome != RoutedToUser {
		t.Fatalf("admin message: result=%+v err=%v", result, err)
	}
	if got := sender.sent[len(sender.sent)-1]; got.chatID != userID || !strings.HasSuffix(got.content.Text, "hi") {
		t.Fatalf("expected tagged admin message at user, got %+v", got)
	}

	if _, err := engine.EndSession(context.Background(), Person{ID: adminID, Name: "Bob"}); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if len(notifier.ended) != 1 || notifier.ended[0] != userID {
		t.Fatalf("expected end notice to user, got %v", notifier.ended)
	}

	result, err = engine.RouteMessage(context.Background(), Person{ID: userID},
		gateway.Content{Kind: gateway.KindText, Text: "still there?"})
	if err != nil || result.Outcome != NoActiveSession {
		t.Fatalf("expected NoActiveSession after end, got %+v err=%v", result, err)
	}
}

func TestRouteLogsMessageSummary(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	startSession(t, engine, store)

	if _, err := engine.RouteMessage(context.Background(), Person{ID: adminID, Name: "Bob"},
		gateway.Content{Kind: gateway.KindPhoto, FileID: "photo-1"}); err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}

	if len(store.messages) != 1 {
		t.Fatalf("expected 1 logged message, got %d", len(store.messages))
	}
	logged := store.messages[0]
	if !logged.FromAdmin || logged.Summary != "[Photo]" {
		t.Fatalf("unexpected logged message: %+v", logged)
	}
}
