package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relaybot/internal/logger"
	"tg-relaybot/internal/relay"
)

// handleCallbackQuery processes callback queries from inline keyboards
func handleCallbackQuery(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery) error {
	if query.Data == "" {
		return nil
	}

	logger.Infof("Received callback query: %s", query.Data)

	if strings.HasPrefix(query.Data, "accept_chat:") {
		return handleAcceptChatCallback(ctx, bot, query)
	} else if strings.HasPrefix(query.Data, "deny_chat:") {
		return handleDenyChatCallback(ctx, bot, query)
	} else if strings.HasPrefix(query.Data, "users_page:") {
		return handleUsersPageCallback(ctx, bot, query)
	} else if strings.HasPrefix(query.Data, "users_refresh:") {
		return handleUsersRefreshCallback(ctx, bot, query)
	} else if query.Data == "users_current" {
		return answerCallback(ctx, bot, query.ID, "", false)
	}

	return nil
}

func answerCallback(ctx *th.Context, bot *telego.Bot, queryID, text string, alert bool) error {
	err := bot.AnswerCallbackQuery(ctx.Context(), &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		logger.Warningf("Error answering callback query: %v", err)
	}
	return err
}

// editPromptMessage rewrites the admin-side request prompt, dropping its
// inline keyboard.
func editPromptMessage(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery, text string) {
	if query.Message == nil {
		return
	}
	accessibleMsg, ok := query.Message.(*telego.Message)
	if !ok {
		return
	}
	_, err := bot.EditMessageText(ctx.Context(), &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: accessibleMsg.Chat.ID},
		MessageID: accessibleMsg.MessageID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		logger.Warningf("Error editing request prompt message: %v", err)
	}
}

func handleAcceptChatCallback(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery) error {
	requestID := strings.TrimPrefix(query.Data, "accept_chat:")
	admin := personFrom(&query.From)

	result, err := relayEngine.AcceptRequest(ctx.Context(), admin, requestID)
	switch {
	case err == nil:
		text := fmt.Sprintf("<b>✅ Chat Request Accepted!</b>\n\n"+
			"<b>User ID:</b> <code>%d</code>\n"+
			"<b>Session ID:</b> <code>%s</code>\n\n"+
			"<b>💬 Chat session is now active. Messages from the user will be forwarded to you.</b>\n"+
			"<b>Use /endchat to end this session.</b>",
			result.TargetUserID, result.SessionID)
		editPromptMessage(ctx, bot, query, text)
		if !result.UserNotified {
			logger.Warningf("Accepted request %s but could not notify user %d", requestID, result.TargetUserID)
		}
		return answerCallback(ctx, bot, query.ID, "Chat request accepted!", false)

	case errors.Is(err, relay.ErrPermissionDenied):
		return answerCallback(ctx, bot, query.ID, "You don't have permission to accept chat requests.", true)

	case errors.Is(err, relay.ErrAlreadyProcessed):
		editPromptMessage(ctx, bot, query,
			"<b>⚠️ Request Already Processed</b>\n\n"+
				"<b>This chat request has already been accepted or denied.</b>")
		return answerCallback(ctx, bot, query.ID, "This request has already been processed.", true)

	case errors.Is(err, relay.ErrAdminBusy):
		return answerCallback(ctx, bot, query.ID,
			"You already have an active chat session. Use /endchat first.", true)

	case errors.Is(err, relay.ErrNotFound):
		return answerCallback(ctx, bot, query.ID, "Chat request not found.", true)

	default:
		logger.Errorf("Error accepting chat request %s: %v", requestID, err)
		return answerCallback(ctx, bot, query.ID, "An error occurred. Please try again.", true)
	}
}

func handleDenyChatCallback(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery) error {
	requestID := strings.TrimPrefix(query.Data, "deny_chat:")
	admin := personFrom(&query.From)

	result, err := relayEngine.DenyRequest(ctx.Context(), admin, requestID)
	switch {
	case err == nil:
		text := fmt.Sprintf("<b>❌ Chat Request Denied</b>\n\n"+
			"<b>User ID:</b> <code>%d</code>\n\n"+
			"<b>The user has been notified that their request was denied.</b>",
			result.TargetUserID)
		editPromptMessage(ctx, bot, query, text)
		return answerCallback(ctx, bot, query.ID, "Chat request denied.", false)

	case errors.Is(err, relay.ErrPermissionDenied):
		return answerCallback(ctx, bot, query.ID, "You don't have permission to deny chat requests.", true)

	case errors.Is(err, relay.ErrAlreadyProcessed):
		editPromptMessage(ctx, bot, query,
			"<b>⚠️ Request Already Processed</b>\n\n"+
				"<b>This chat request has already been accepted or denied.</b>")
		return answerCallback(ctx, bot, query.ID, "This request has already been processed.", true)

	case errors.Is(err, relay.ErrNotFound):
		return answerCallback(ctx, bot, query.ID, "Chat request not found.", true)

	default:
		logger.Errorf("Error denying chat request %s: %v", requestID, err)
		return answerCallback(ctx, bot, query.ID, "An error occurred. Please try again.", true)
	}
}

func handleUsersPageCallback(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery) error {
	if !globalConfig.IsSudoUser(query.From.ID) {
		return answerCallback(ctx, bot, query.ID, "You don't have permission to view users.", true)
	}

	page, err := strconv.Atoi(strings.TrimPrefix(query.Data, "users_page:"))
	if err != nil {
		logger.Warningf("Invalid callback data in users page callback: %s", query.Data)
		return nil
	}

	if err := editUsersDashboard(ctx, bot, query, page); err != nil {
		return err
	}
	return answerCallback(ctx, bot, query.ID, "", false)
}

func handleUsersRefreshCallback(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery) error {
	if !globalConfig.IsSudoUser(query.From.ID) {
		return answerCallback(ctx, bot, query.ID, "You don't have permission to view users.", true)
	}

	page, err := strconv.Atoi(strings.TrimPrefix(query.Data, "users_refresh:"))
	if err != nil {
		logger.Warningf("Invalid callback data in users refresh callback: %s", query.Data)
		return nil
	}

	if err := editUsersDashboard(ctx, bot, query, page); err != nil {
		return err
	}
	return answerCallback(ctx, bot, query.ID, "Dashboard refreshed!", false)
}
