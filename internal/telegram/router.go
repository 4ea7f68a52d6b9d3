package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Router handles message routing and command parsing
type Router struct {
	logger     *logrus.Logger
	handlers   map[string]CommandHandler
	callbacks  map[string]CallbackHandler
	memberLeft MemberLeftHandler
}

// CommandHandler defines the interface for command handlers
type CommandHandler interface {
	Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error
}

// CallbackHandler handles inline keyboard callbacks. The args are the
// colon-separated fields of the callback data after the action prefix.
type CallbackHandler interface {
	HandleCallback(bot *tgbotapi.BotAPI, query *tgbotapi.CallbackQuery, args []string) error
}

// MemberLeftHandler reacts to a user leaving the chat.
type MemberLeftHandler interface {
	HandleMemberLeft(bot *tgbotapi.BotAPI, message *tgbotapi.Message, left *tgbotapi.User) error
}

// NewRouter creates a new message router
func NewRouter(logger *logrus.Logger) *Router {
	return &Router{
		logger:    logger,
		handlers:  make(map[string]CommandHandler),
		callbacks: make(map[string]CallbackHandler),
	}
}

// RegisterCommand registers a command handler
func (r *Router) RegisterCommand(command string, handler CommandHandler) {
	r.handlers[command] = handler
	r.logger.Debugf("Registered command: %s", command)
}

// RegisterCallback registers a handler for callback data starting
// with the given action prefix
func (r *Router) RegisterCallback(action string, handler CallbackHandler) {
	r.callbacks[action] = handler
	r.logger.Debugf("Registered callback: %s", action)
}

// RegisterMemberLeft registers the handler for left-chat-member updates
func (r *Router) RegisterMemberLeft(handler MemberLeftHandler) {
	r.memberLeft = handler
}

// HandleMessage handles incoming messages
func (r *Router) HandleMessage(bot *tgbotapi.BotAPI, message *tgbotapi.Message) {
	// Log the incoming message
	r.logger.WithFields(logrus.Fields{
		"chat_id":    message.Chat.ID,
		"user_id":    message.From.ID,
		"username":   message.From.UserName,
		"message_id": message.MessageID,
		"text":       message.Text,
	}).Info("Received message")

	// A user leaving the chat is a service message, not a command. Their
	// seat goes with them.
	if message.LeftChatMember != nil {
		if r.memberLeft == nil {
			return
		}
		if err := r.memberLeft.HandleMemberLeft(bot, message, message.LeftChatMember); err != nil {
			r.logger.WithFields(logrus.Fields{
				"chat_id": message.Chat.ID,
				"user_id": message.LeftChatMember.ID,
				"error":   err,
			}).Error("Member-left handler failed")
		}
		return
	}

	// Only process text messages
	if message.Text == "" {
		return
	}

	// Check if it's a command
	if !message.IsCommand() {
		return
	}

	command := message.Command()
	args := strings.Fields(message.CommandArguments())

	// Find and execute handler
	if handler, exists := r.handlers[command]; exists {
		if err := handler.Handle(bot, message, args); err != nil {
			r.logger.WithFields(logrus.Fields{
				"command": command,
				"chat_id": message.Chat.ID,
				"user_id": message.From.ID,
				"error":   err,
			}).Error("Command handler failed")

			// Send error message to user
			errorMsg := tgbotapi.NewMessage(message.Chat.ID, "❌ An error occurred while processing your command. Please try again.")
			bot.Send(errorMsg)
		}
	} else {
		// Unknown command
		r.logger.WithFields(logrus.Fields{
			"command": command,
			"chat_id": message.Chat.ID,
			"user_id": message.From.ID,
		}).Warn("Unknown command")

		unknownMsg := tgbotapi.NewMessage(message.Chat.ID, "❓ Unknown command. Use /help to see available commands.")
		bot.Send(unknownMsg)
	}
}

// HandleCallbackQuery handles callback queries from inline keyboards
func (r *Router) HandleCallbackQuery(bot *tgbotapi.BotAPI, callbackQuery *tgbotapi.CallbackQuery) {
	// Log the callback query
	r.logger.WithFields(logrus.Fields{
		"callback_id": callbackQuery.ID,
		"user_id":     callbackQuery.From.ID,
		"data":        callbackQuery.Data,
	}).Info("Received callback query")

	// Answer the callback query to remove loading state
	callback := tgbotapi.NewCallback(callbackQuery.ID, "")
	bot.Request(callback)

	parts := strings.Split(callbackQuery.Data, ":")
	if len(parts) == 0 {
		return
	}

	handler, exists := r.callbacks[parts[0]]
	if !exists {
		r.logger.WithField("data", callbackQuery.Data).Warn("Unknown callback action")
		return
	}

	if err := handler.HandleCallback(bot, callbackQuery, parts[1:]); err != nil {
		r.logger.WithFields(logrus.Fields{
			"data":    callbackQuery.Data,
			"user_id": callbackQuery.From.ID,
			"error":   err,
		}).Error("Callback handler failed")
	}
}
