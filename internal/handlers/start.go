package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/service"
)

// StartHandler handles the /start command
type StartHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewStartHandler creates a new start command handler
func NewStartHandler(svc *service.Service, logger *logrus.Logger) *StartHandler {
	return &StartHandler{
		svc:    svc,
		logger: logger,
	}
}

// Handle processes the /start command
func (h *StartHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	// Record the sender so DMs and @username lookups work from now on.
	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		h.logger.WithError(err).Warn("Failed to record user on /start")
	}

	welcomeText := `🚗 *Welcome to CarpoolBot!*

I coordinate who rides with whom for a group trip.

*How it works:*
1. Someone starts the trip: /trip Ski weekend
2. Drivers register cars: /car 4 Blue Octavia
3. Everyone else asks for seats: /cars then /in 1
4. Drivers approve or deny from the buttons I DM them

Use /help for the full command list.`

	msg := tgbotapi.NewMessage(message.Chat.ID, welcomeText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
	}).Info("Sent start message")

	return nil
}
