package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relaybot/internal/broadcast"
	"tg-relaybot/internal/config"
	"tg-relaybot/internal/crash"
	"tg-relaybot/internal/gateway"
	"tg-relaybot/internal/logger"
	"tg-relaybot/internal/service"
)

// broadcastOptions converts the config section into engine options.
func broadcastOptions(cfg *config.Config) broadcast.Options {
	return broadcast.Options{
		SendDelay:         time.Duration(cfg.Broadcast.SendDelayMs) * time.Millisecond,
		RateLimitCooldown: time.Duration(cfg.Broadcast.RateLimitCooldownSec) * time.Second,
		ProgressBatchSize: cfg.Broadcast.ProgressBatchSize,
	}
}

func handleBroadcastCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	if !globalConfig.IsSudoUser(message.From.ID) {
		return reply(ctx, bot, message, "❌ You don't have permission to use this command!")
	}

	if message.ReplyToMessage == nil {
		return reply(ctx, bot, message,
			"<b>📢 Broadcast Usage:</b>\n\n"+
				"<b>Reply to any message with /broadcast to send it to all users.</b>\n\n"+
				"<b>Supported:</b> text, photos, videos, documents, audio, stickers")
	}

	total, err := service.UserCount()
	if err != nil {
		logger.Errorf("Error counting users for broadcast: %v", err)
		return reply(ctx, bot, message, "❌ An error occurred while preparing the broadcast.")
	}
	if total == 0 {
		return reply(ctx, bot, message, "❌ No users found to broadcast to!")
	}

	statusMsg, err := bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: message.Chat.ID},
		Text: fmt.Sprintf("📢 Broadcasting message to %d users...\n\n"+
			"✅ Sent: 0\n❌ Failed: 0\n⏳ Progress: 0%%", total),
	})
	if err != nil {
		return err
	}

	content := gateway.FromMessage(message.ReplyToMessage)
	reporter := &statusReporter{
		bot:       bot,
		chatID:    message.Chat.ID,
		messageID: statusMsg.MessageID,
	}

	// The run outlives the update that triggered it; it keeps going even
	// if the webhook server is shutting down.
	crash.SafeGoroutine("broadcast-run", func() {
		if _, err := broadcastEngine.Run(context.Background(), content, reporter); err != nil {
			logger.Errorf("Broadcast run failed: %v", err)
		}
	})

	return nil
}

// statusReporter edits the status message in the invoking admin's chat as
// the broadcast progresses.
type statusReporter struct {
	bot       *telego.Bot
	chatID    int64
	messageID int
}

func (r *statusReporter) Progress(ctx context.Context, progress broadcast.Progress) error {
	failed := progress.Blocked + progress.Deleted + progress.Failed
	percent := 0
	if progress.Total > 0 {
		percent = progress.Done * 100 / progress.Total
	}

	text := fmt.Sprintf("📢 Broadcasting message to %d users...\n\n"+
		"✅ Sent: %d\n❌ Failed: %d\n⏳ Progress: %d%% (%d/%d)\n"+
		"🕐 Elapsed: %s | ETA: %s",
		progress.Total, progress.Success, failed, percent, progress.Done, progress.Total,
		formatDuration(progress.Elapsed), formatDuration(progress.Remaining))

	_, err := r.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: r.chatID},
		MessageID: r.messageID,
		Text:      text,
	})
	return err
}

func (r *statusReporter) Final(ctx context.Context, summary broadcast.Summary) error {
	rating := summary.Rating()
	emoji := "🔴"
	switch rating {
	case broadcast.RatingExcellent:
		emoji = "🟢"
	case broadcast.RatingGood:
		emoji = "🟡"
	}

	text := fmt.Sprintf("<b>📢 Broadcast Completed!</b>\n\n"+
		"<b>📊 Statistics:</b>\n"+
		"<b>👥 Total Users:</b> <code>%d</code>\n"+
		"<b>✅ Successfully Sent:</b> <code>%d</code>\n"+
		"<b>🚫 Blocked Bot:</b> <code>%d</code>\n"+
		"<b>🗑 Deleted Accounts:</b> <code>%d</code>\n"+
		"<b>❌ Other Failures:</b> <code>%d</code>\n\n"+
		"<b>📈 Success Rate:</b> <code>%.1f%%</code>\n"+
		"<b>%s Delivery Rating:</b> <code>%s</code>\n"+
		"<b>🕐 Time Taken:</b> <code>%s</code>",
		summary.Total, summary.Success, summary.Blocked, summary.Deleted, summary.Failed,
		summary.SuccessRate(), emoji, rating, formatDuration(summary.Elapsed))

	_, err := r.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: r.chatID},
		MessageID: r.messageID,
		Text:      text,
		ParseMode: "HTML",
	})
	return err
}
