package handler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relaybot/internal/logger"
	"tg-relaybot/internal/relay"
	"tg-relaybot/internal/service"
)

// personFrom builds the engine identity from a message sender.
func personFrom(user *telego.User) relay.Person {
	return relay.Person{
		ID:       user.ID,
		Name:     user.FirstName,
		Username: user.Username,
	}
}

// reply sends an HTML message back into the chat the message came from.
func reply(ctx *th.Context, bot *telego.Bot, message telego.Message, text string) error {
	_, err := bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: message.Chat.ID},
		Text:      text,
		ParseMode: "HTML",
	})
	return err
}

func handleStartCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if message.From == nil || message.Chat.Type != "private" {
		return nil
	}

	user := message.From
	if err := service.RegisterUser(user.ID, user.FirstName, user.Username); err != nil {
		logger.Errorf("Failed to register user %d: %v", user.ID, err)
		return reply(ctx, bot, message, "❌ An error occurred. Please try again.")
	}

	return reply(ctx, bot, message,
		fmt.Sprintf("<b>👋 Welcome, %s!</b>\n\n"+
			"<b>This bot forwards files between channels for you.</b>\n\n"+
			"<b>💬 Use /contact to reach an admin.</b>", user.FirstName))
}

func handleContactCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if message.From == nil || message.Chat.Type != "private" {
		return nil
	}

	user := personFrom(message.From)
	result, err := relayEngine.CreateRequest(ctx.Context(), user)
	switch {
	case err == nil:
		return reply(ctx, bot, message,
			fmt.Sprintf("<b>💬 Contact Request Submitted!</b>\n\n"+
				"<b>Your request to contact admin has been submitted.</b>\n"+
				"<b>⏳ Please wait for admin approval.</b>\n\n"+
				"<b>Request ID:</b> <code>%s</code>\n"+
				"<b>💬 You will be notified once an admin accepts your request.</b>", result.RequestID))

	case errors.Is(err, relay.ErrAlreadyPending):
		text := "<b>⏳ Chat Request Already Pending</b>\n\n" +
			"<b>You already have a pending chat request.</b>\n" +
			"<b>Please wait for admin approval.</b>"
		if pending, pendErr := relayEngine.PendingRequest(user.ID); pendErr == nil {
			text += fmt.Sprintf("\n\n<b>Request ID:</b> <code>%s</code>\n<b>Submitted:</b> %s",
				pending.ID, pending.CreatedAt.Format("2006-01-02 15:04"))
		}
		return reply(ctx, bot, message, text)

	case errors.Is(err, relay.ErrAlreadyInSession):
		text := "<b>💬 You already have an active chat session with admin!</b>\n\n" +
			"<b>Just send your message and it will be forwarded to admin.</b>"
		if session, sessErr := relayEngine.SessionForUser(user.ID); sessErr == nil {
			text += fmt.Sprintf("\n\n<b>Session ID:</b> <code>%s</code>\n<b>Started:</b> %s",
				session.ID, session.CreatedAt.Format("2006-01-02 15:04"))
		}
		return reply(ctx, bot, message, text)

	default:
		logger.Errorf("Error in contact command for user %d: %v", user.ID, err)
		return reply(ctx, bot, message, "❌ An error occurred. Please try again.")
	}
}

func handleChatCommand(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if message.From == nil {
		return nil
	}
	admin := personFrom(message.From)

	if !globalConfig.IsSudoUser(admin.ID) {
		return reply(ctx, bot, message, "❌ You don't have permission to use this command!")
	}

	if len(args) < 1 {
		return reply(ctx, bot, message,
			"<b>📝 Usage:</b> <code>/chat USER_ID</code>\n\n"+
				"<b>Example:</b> <code>/chat 123456789</code>\n\n"+
				"<b>This will start a direct chat session with the user.</b>")
	}

	targetUserID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return reply(ctx, bot, message,
			"<b>❌ Invalid User ID!</b>\n\n"+
				"<b>Please provide a valid numeric user ID.</b>\n\n"+
				"<b>Example:</b> <code>/chat 123456789</code>")
	}

	result, err := relayEngine.StartDirectSession(ctx.Context(), admin, targetUserID)
	switch {
	case err == nil:
		text := fmt.Sprintf("<b>✅ Direct Chat Session Started!</b>\n\n"+
			"<b>Target User:</b> <code>%d</code>\n"+
			"<b>Session ID:</b> <code>%s</code>\n\n"+
			"<b>💬 You can now chat directly with this user.</b>\n"+
			"<b>Messages you send will be forwarded to them.</b>\n\n"+
			"<b>Use /endchat to end this session.</b>", targetUserID, result.SessionID)
		if err := reply(ctx, bot, message, text); err != nil {
			return err
		}
		if !result.UserNotified {
			return reply(ctx, bot, message,
				fmt.Sprintf("⚠️ Chat started but failed to notify user %d", targetUserID))
		}
		return nil

	case errors.Is(err, relay.ErrUnknownUser):
		return reply(ctx, bot, message,
			"<b>❌ User not found!</b>\n\n"+
				"<b>The specified user is not registered with the bot.</b>")

	case errors.Is(err, relay.ErrAdminBusy):
		text := "<b>⚠️ You already have an active chat session!</b>\n\n"
		if session, sessErr := relayEngine.SessionForAdmin(admin.ID); sessErr == nil {
			text += fmt.Sprintf("<b>Target User:</b> <code>%d</code>\n", session.TargetUserID)
		}
		text += "<b>Use /endchat to end current session first.</b>"
		return reply(ctx, bot, message, text)

	case errors.Is(err, relay.ErrUserBusy):
		text := fmt.Sprintf("<b>⚠️ User is already in a chat session!</b>\n\n"+
			"<b>User ID:</b> <code>%d</code>\n", targetUserID)
		if session, sessErr := relayEngine.SessionForUser(targetUserID); sessErr == nil {
			text += fmt.Sprintf("<b>Admin:</b> <code>%d</code>", session.AdminID)
		}
		return reply(ctx, bot, message, text)

	default:
		logger.Errorf("Error starting direct chat for admin %d: %v", admin.ID, err)
		return reply(ctx, bot, message, "❌ An error occurred while starting the chat. Please try again.")
	}
}

func handleEndChatCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	admin := personFrom(message.From)

	if !globalConfig.IsSudoUser(admin.ID) {
		return reply(ctx, bot, message, "❌ You don't have permission to use this command!")
	}

	statusMsg, err := bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: message.Chat.ID},
		Text:   "🔍 Checking for active chat sessions...",
	})
	if err != nil {
		return err
	}

	editStatus := func(text string) error {
		_, err := bot.EditMessageText(ctx.Context(), &telego.EditMessageTextParams{
			ChatID:    telego.ChatID{ID: message.Chat.ID},
			MessageID: statusMsg.MessageID,
			Text:      text,
			ParseMode: "HTML",
		})
		return err
	}

	result, err := relayEngine.EndSession(ctx.Context(), admin)
	switch {
	case err == nil:
		text := fmt.Sprintf("<b>✅ Chat Session Ended!</b>\n\n"+
			"<b>User ID:</b> <code>%d</code>\n"+
			"<b>Session ID:</b> <code>%s</code>\n\n"+
			"<b>🔒 Chat session has been closed successfully.</b>",
			result.TargetUserID, result.SessionID)
		if err := editStatus(text); err != nil {
			return err
		}
		if !result.UserNotified {
			return reply(ctx, bot, message,
				fmt.Sprintf("⚠️ Chat ended successfully but failed to notify user %d", result.TargetUserID))
		}
		return nil

	case errors.Is(err, relay.ErrNoActiveSession):
		return editStatus("<b>❌ No Active Chat!</b>\n\n" +
			"<b>You don't have any active chat sessions.</b>\n\n" +
			"<b>Use /chat USER_ID to start a new chat.</b>")

	default:
		logger.Errorf("Error ending chat for admin %d: %v", admin.ID, err)
		return editStatus("❌ Failed to end chat session. It may have already been ended.")
	}
}

func handleActiveChatsCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	if !globalConfig.IsSudoUser(message.From.ID) {
		return reply(ctx, bot, message, "❌ You don't have permission to use this command!")
	}

	sessions, err := service.ActiveSessions()
	if err != nil {
		logger.Errorf("Error listing active chats: %v", err)
		return reply(ctx, bot, message, "❌ An error occurred while fetching active chats.")
	}

	if len(sessions) == 0 {
		return reply(ctx, bot, message,
			"<b>📋 No Active Chat Sessions</b>\n\n"+
				"<b>No active chat sessions found.</b>")
	}

	text := "<b>📋 Active Chat Sessions</b>\n\n"
	for i, session := range sessions {
		text += fmt.Sprintf("<b>%d. Session ID:</b> <code>%s</code>\n", i+1, session.ID)
		text += fmt.Sprintf("   <b>Admin:</b> <code>%d</code>\n", session.AdminID)
		text += fmt.Sprintf("   <b>User:</b> <code>%d</code>\n", session.TargetUserID)
		text += fmt.Sprintf("   <b>Started:</b> %s\n\n", session.CreatedAt.Format("2006-01-02 15:04"))
	}

	return reply(ctx, bot, message, text)
}
