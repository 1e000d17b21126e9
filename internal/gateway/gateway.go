package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
)

// classified delivery failures
var (
	// ErrBlocked means the recipient has blocked the bot.
	ErrBlocked = errors.New("recipient has blocked the bot")
	// ErrDeleted means the recipient account no longer exists.
	ErrDeleted = errors.New("recipient account is deleted")
)

// RateLimitedError means the platform asked us to slow down. RetryAfter
// is the server-suggested cool-down, zero when it was not provided.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by the platform, retry after %s", e.RetryAfter)
}

// Sender delivers typed content to a chat. Implemented by BotGateway for
// the real platform and by fakes in engine tests.
type Sender interface {
	Send(ctx context.Context, chatID int64, content Content) error
	Forward(ctx context.Context, chatID, fromChatID int64, messageID int) error
}

// BotGateway adapts a telego bot to the Sender interface, classifying
// platform failures into ErrBlocked / ErrDeleted / RateLimitedError.
type BotGateway struct {
	bot *telego.Bot
}

// NewBotGateway creates a BotGateway
func NewBotGateway(bot *telego.Bot) *BotGateway {
	return &BotGateway{bot: bot}
}

// Send dispatches the content to the matching platform operation. This is
// the single content-kind switch shared by the relay and broadcast paths.
func (g *BotGateway) Send(ctx context.Context, chatID int64, content Content) error {
	chat := telego.ChatID{ID: chatID}

	var err error
	switch content.Kind {
	case KindText:
		_, err = g.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID:    chat,
			Text:      content.Text,
			ParseMode: "HTML",
		})
	case KindPhoto:
		_, err = g.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID:    chat,
			Photo:     telego.InputFile{FileID: content.FileID},
			Caption:   content.Caption,
			ParseMode: "HTML",
		})
	case KindVideo:
		_, err = g.bot.SendVideo(ctx, &telego.SendVideoParams{
			ChatID:    chat,
			Video:     telego.InputFile{FileID: content.FileID},
			Caption:   content.Caption,
			ParseMode: "HTML",
		})
	case KindDocument:
		_, err = g.bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID:    chat,
			Document:  telego.InputFile{FileID: content.FileID},
			Caption:   content.Caption,
			ParseMode: "HTML",
		})
	case KindVoice:
		_, err = g.bot.SendVoice(ctx, &telego.SendVoiceParams{
			ChatID:    chat,
			Voice:     telego.InputFile{FileID: content.FileID},
			Caption:   content.Caption,
			ParseMode: "HTML",
		})
	case KindAudio:
		_, err = g.bot.SendAudio(ctx, &telego.SendAudioParams{
			ChatID:    chat,
			Audio:     telego.InputFile{FileID: content.FileID},
			Caption:   content.Caption,
			ParseMode: "HTML",
		})
	case KindSticker:
		_, err = g.bot.SendSticker(ctx, &telego.SendStickerParams{
			ChatID:  chat,
			Sticker: telego.InputFile{FileID: content.FileID},
		})
	case KindAnimation:
		_, err = g.bot.SendAnimation(ctx, &telego.SendAnimationParams{
			ChatID:    chat,
			Animation: telego.InputFile{FileID: content.FileID},
			Caption:   content.Caption,
			ParseMode: "HTML",
		})
	default:
		return fmt.Errorf("unsupported content kind %d", content.Kind)
	}

	return Classify(err)
}

// Forward relays the original message as-is. Fallback for content kinds
// the typed send path does not recognize.
func (g *BotGateway) Forward(ctx context.Context, chatID, fromChatID int64, messageID int) error {
	_, err := g.bot.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     telego.ChatID{ID: chatID},
		FromChatID: telego.ChatID{ID: fromChatID},
		MessageID:  messageID,
	})
	return Classify(err)
}

// Classify maps a raw platform error onto the delivery failure taxonomy.
// Errors that do not match a known class are returned unchanged and count
// as generic failures.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *telegoapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	description := strings.ToLower(apiErr.Description)
	switch apiErr.ErrorCode {
	case 403:
		// Deactivated accounts also answer 403; distinguish them from
		// plain blocks so the cleanup path fires.
		if strings.Contains(description, "deactivated") {
			return fmt.Errorf("%w: %s", ErrDeleted, apiErr.Description)
		}
		return fmt.Errorf("%w: %s", ErrBlocked, apiErr.Description)
	case 400:
		if strings.Contains(description, "chat not found") || strings.Contains(description, "user not found") {
			return fmt.Errorf("%w: %s", ErrDeleted, apiErr.Description)
		}
	case 429:
		retryAfter := time.Duration(0)
		if apiErr.Parameters != nil {
			retryAfter = time.Duration(apiErr.Parameters.RetryAfter) * time.Second
		}
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	return err
}
