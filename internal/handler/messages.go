package handler

import (
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relaybot/internal/gateway"
	"tg-relaybot/internal/logger"
	"tg-relaybot/internal/relay"
)

// handleChatMessage relays a non-command private message through any
// active chat session the sender participates in.
func handleChatMessage(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if message.From == nil || message.From.IsBot {
		return nil
	}
	if message.Chat.Type != "private" {
		return nil
	}

	sender := personFrom(message.From)
	content := gateway.FromMessage(&message)

	result, err := relayEngine.RouteMessage(ctx.Context(), sender, content)
	if err != nil {
		var delivery *relay.DeliveryError
		if errors.As(err, &delivery) {
			logger.Errorf("Relay delivery from %d to %d failed: %v", sender.ID, delivery.PeerID, delivery.Err)
			return reply(ctx, bot, message,
				fmt.Sprintf("❌ Failed to deliver your message to <code>%d</code>. The session is still active; please try again.", delivery.PeerID))
		}
		logger.Errorf("Error routing message from %d: %v", sender.ID, err)
		return nil
	}

	switch result.Outcome {
	case relay.RoutedToUser:
		return reply(ctx, bot, message, "✅ Message sent to user!")
	case relay.RoutedToAdmin:
		return reply(ctx, bot, message, "✅ Your message has been sent to admin!")
	default:
		// No session and not configuring: the message is simply ignored.
		return nil
	}
}
