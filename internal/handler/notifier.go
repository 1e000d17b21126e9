package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"

	"tg-relaybot/internal/relay"
)

// botNotifier implements relay.Notifier, carrying the HTML copy for the
// notices that accompany state transitions.
type botNotifier struct {
	bot *telego.Bot
}

func (n *botNotifier) ContactRequest(ctx context.Context, adminID int64, requestID string, from relay.Person) error {
	username := ""
	if from.Username != "" {
		username = " @" + from.Username
	}

	_, err := n.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: adminID},
		Text: fmt.Sprintf("<b>💬 New Contact Request</b>\n\n"+
			"<b>User:</b> %s%s\n"+
			"<b>User ID:</b> <code>%d</code>\n"+
			"<b>Request ID:</b> <code>%s</code>\n"+
			"<b>Time:</b> %s\n\n"+
			"<b>Choose an action:</b>",
			from.Name, username, from.ID, requestID, time.Now().Format("2006-01-02 15:04:05")),
		ParseMode: "HTML",
		ReplyMarkup: &telego.InlineKeyboardMarkup{
			InlineKeyboard: [][]telego.InlineKeyboardButton{{
				{Text: "✅ Accept Chat", CallbackData: "accept_chat:" + requestID},
				{Text: "❌ Deny", CallbackData: "deny_chat:" + requestID},
			}},
		},
	})
	return err
}

func (n *botNotifier) RequestAccepted(ctx context.Context, userID int64, sessionID string, admin relay.Person) error {
	_, err := n.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: userID},
		Text: fmt.Sprintf("<b>✅ Chat Request Accepted!</b>\n\n"+
			"<b>Admin %s has accepted your chat request!</b>\n\n"+
			"<b>💬 You can now chat directly with the admin.</b>\n"+
			"<b>Just send your message and it will be forwarded.</b>\n\n"+
			"<b>Session ID:</b> <code>%s</code>", admin.Name, sessionID),
		ParseMode: "HTML",
	})
	return err
}

func (n *botNotifier) RequestDenied(ctx context.Context, userID int64) error {
	_, err := n.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: userID},
		Text: "<b>❌ Chat Request Denied</b>\n\n" +
			"<b>Your chat request has been denied by admin.</b>\n" +
			"<b>You can try again later if needed.</b>",
		ParseMode: "HTML",
	})
	return err
}

func (n *botNotifier) SessionStarted(ctx context.Context, userID int64, sessionID string, admin relay.Person) error {
	_, err := n.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: userID},
		Text: fmt.Sprintf("<b>📞 Admin Chat Started!</b>\n\n"+
			"<b>Admin %s has started a chat session with you!</b>\n\n"+
			"<b>💬 You can now chat directly with the admin.</b>\n"+
			"<b>Just send your message and it will be forwarded.</b>\n\n"+
			"<b>Session ID:</b> <code>%s</code>", admin.Name, sessionID),
		ParseMode: "HTML",
	})
	return err
}

func (n *botNotifier) SessionEnded(ctx context.Context, userID int64, admin relay.Person) error {
	name := admin.Name
	if name == "" {
		name = "Admin"
	}
	_, err := n.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: userID},
		Text: fmt.Sprintf("<b>🔒 Chat Session Ended!</b>\n\n"+
			"<b>Admin %s has ended the chat session.</b>\n\n"+
			"<b>💬 Use /contact to request a new chat session if needed.</b>", name),
		ParseMode: "HTML",
	})
	return err
}
