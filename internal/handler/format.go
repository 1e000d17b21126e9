package handler

import (
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relaybot/internal/logger"
	"tg-relaybot/internal/models"
	"tg-relaybot/internal/service"
)

const usersPerPage = 8

func handleUsersCommand(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if message.From == nil {
		return nil
	}
	if !globalConfig.IsSudoUser(message.From.ID) {
		return reply(ctx, bot, message, "❌ You don't have permission to use this command!")
	}

	page := 1
	if len(args) > 0 {
		if parsed, err := strconv.Atoi(args[0]); err == nil && parsed > 0 {
			page = parsed
		}
	}

	dashboard, err := service.LoadDashboard(time.Now())
	if err != nil {
		logger.Errorf("Error loading users dashboard: %v", err)
		return reply(ctx, bot, message, "❌ An error occurred while fetching users.")
	}
	if len(dashboard.Users) == 0 {
		return reply(ctx, bot, message,
			"<b>📋 No Users Found</b>\n\n<b>No users have registered with the bot yet.</b>")
	}

	text, keyboard := renderDashboard(dashboard, page)
	_, err = bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID:      telego.ChatID{ID: message.Chat.ID},
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	return err
}

// editUsersDashboard re-renders the dashboard message in place for
// pagination and refresh callbacks.
func editUsersDashboard(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery, page int) error {
	if query.Message == nil {
		return nil
	}
	accessibleMsg, ok := query.Message.(*telego.Message)
	if !ok {
		return nil
	}

	dashboard, err := service.LoadDashboard(time.Now())
	if err != nil {
		logger.Errorf("Error loading users dashboard: %v", err)
		return err
	}

	text, keyboard := renderDashboard(dashboard, page)
	_, err = bot.EditMessageText(ctx.Context(), &telego.EditMessageTextParams{
		ChatID:      telego.ChatID{ID: accessibleMsg.Chat.ID},
		MessageID:   accessibleMsg.MessageID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	return err
}

// renderDashboard builds one page of the users dashboard and its
// pagination keyboard.
func renderDashboard(dashboard *service.Dashboard, page int) (string, *telego.InlineKeyboardMarkup) {
	stats := dashboard.Stats
	totalPages := (stats.Total + usersPerPage - 1) / usersPerPage
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	text := "<b>📊 Users Dashboard</b>\n\n"
	text += fmt.Sprintf("<b>👥 Total Users:</b> <code>%d</code>\n", stats.Total)
	text += fmt.Sprintf("<b>⭐ Premium:</b> <code>%d</code> (%.1f%%)\n", stats.Premium, stats.PremiumPct())
	text += fmt.Sprintf("<b>🆓 Free:</b> <code>%d</code> (%.1f%%)\n", stats.Free, stats.FreePct())
	text += fmt.Sprintf("<b>💠 Plus:</b> <code>%d</code> | <b>💎 Pro:</b> <code>%d</code> | <b>👑 Lifetime:</b> <code>%d</code>\n\n",
		stats.PlusCount, stats.ProCount, stats.SudoLifetime)
	text += fmt.Sprintf("<b>📈 New Today:</b> <code>%d</code> | <b>Week:</b> <code>%d</code> | <b>Month:</b> <code>%d</code>\n",
		stats.JoinedToday, stats.JoinedWeek, stats.JoinedMonth)
	text += fmt.Sprintf("<b>💰 Revenue:</b> <code>$%.2f</code> | <b>Month:</b> <code>$%.2f</code> | <b>Today:</b> <code>$%.2f</code>\n\n",
		stats.TotalRevenue, stats.RevenueMonth, stats.RevenueToday)

	start := (page - 1) * usersPerPage
	end := start + usersPerPage
	if end > len(dashboard.Users) {
		end = len(dashboard.Users)
	}

	now := time.Now()
	text += fmt.Sprintf("<b>📋 Users (Page %d/%d):</b>\n\n", page, totalPages)
	for i := start; i < end; i++ {
		user := dashboard.Users[i]
		badge := "🆓"
		if plan := dashboard.Plans[user.ID]; plan != nil && plan.ActiveAt(now) {
			switch {
			case plan.IsSudoLifetime:
				badge = "👑"
			case plan.PlanType == models.PlanPro:
				badge = "💎"
			default:
				badge = "💠"
			}
		}
		text += fmt.Sprintf("%d. %s %s\n   <b>ID:</b> <code>%d</code> | <b>Joined:</b> %s\n",
			i+1, badge, userLink(user), user.ID, user.JoinedAt.Format("2006-01-02"))
	}

	return text, paginationKeyboard(page, totalPages)
}

// userLink renders a clickable mention, falling back to the plain name
// when no username is set.
func userLink(user models.UserRecord) string {
	name := html.EscapeString(user.Name)
	if name == "" {
		name = "Unknown"
	}
	if user.Username != "" {
		return fmt.Sprintf("<a href=\"https://t.me/%s\">%s</a>", user.Username, name)
	}
	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", user.ID, name)
}

func paginationKeyboard(page, totalPages int) *telego.InlineKeyboardMarkup {
	var row []telego.InlineKeyboardButton
	if page > 1 {
		row = append(row, telego.InlineKeyboardButton{
			Text:         "⬅️ Prev",
			CallbackData: fmt.Sprintf("users_page:%d", page-1),
		})
	}
	row = append(row, telego.InlineKeyboardButton{
		Text:         fmt.Sprintf("📄 %d/%d", page, totalPages),
		CallbackData: "users_current",
	})
	if page < totalPages {
		row = append(row, telego.InlineKeyboardButton{
			Text:         "Next ➡️",
			CallbackData: fmt.Sprintf("users_page:%d", page+1),
		})
	}

	keyboard := [][]telego.InlineKeyboardButton{
		row,
		{{Text: "🔄 Refresh", CallbackData: fmt.Sprintf("users_refresh:%d", page)}},
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

// formatDuration renders an elapsed time compactly, e.g. "1m 23s".
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
