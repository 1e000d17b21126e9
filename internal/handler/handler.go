package handler

import (
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relaybot/internal/broadcast"
	"tg-relaybot/internal/config"
	"tg-relaybot/internal/gateway"
	"tg-relaybot/internal/relay"
	"tg-relaybot/internal/service"
)

var (
	globalConfig    *config.Config
	relayEngine     *relay.Engine
	broadcastEngine *broadcast.Engine
)

// Initialize initializes the handler with configuration
func Initialize(cfg *config.Config) {
	globalConfig = cfg
	service.Initialize(cfg)
}

// SetupMessageHandlers wires the engines and registers all bot update
// handlers. Both bot runtimes call into the same engines; all engine
// operations are safe under interleaved calls.
func SetupMessageHandlers(bh *th.BotHandler, bot *telego.Bot) {
	service.InitRepositories()

	store := service.NewSessionStore()
	botGateway := gateway.NewBotGateway(bot)

	relayEngine = &relay.Engine{
		Store:    store,
		Gateway:  botGateway,
		Notifier: &botNotifier{bot: bot},
		IsSudo:   globalConfig.IsSudoUser,
		AdminIDs: globalConfig.SudoUserIDs(),
	}

	broadcastEngine = &broadcast.Engine{
		Gateway: botGateway,
		Users:   store,
		Opts:    broadcastOptions(globalConfig),
	}

	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		ok, err := dispatchCommand(ctx, bot, message)
		if ok {
			return err
		}
		return handleChatMessage(ctx, bot, message)
	})

	bh.HandleCallbackQuery(func(ctx *th.Context, query telego.CallbackQuery) error {
		return handleCallbackQuery(ctx, bot, query)
	})
}

// dispatchCommand routes slash commands; returns false when the message
// is not a recognized command and should flow to the chat relay.
func dispatchCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) (bool, error) {
	if message.From == nil || !strings.HasPrefix(message.Text, "/") {
		return false, nil
	}

	fields := strings.Fields(message.Text)
	command := fields[0]
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	args := fields[1:]

	switch command {
	case "/start":
		return true, handleStartCommand(ctx, bot, message)
	case "/contact":
		return true, handleContactCommand(ctx, bot, message)
	case "/chat", "/chatuser":
		return true, handleChatCommand(ctx, bot, message, args)
	case "/endchat":
		return true, handleEndChatCommand(ctx, bot, message)
	case "/activechats":
		return true, handleActiveChatsCommand(ctx, bot, message)
	case "/broadcast":
		return true, handleBroadcastCommand(ctx, bot, message)
	case "/users", "/users_detailed":
		return true, handleUsersCommand(ctx, bot, message, args)
	}

	return false, nil
}
