package handlers

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// HelpHandler handles the /help command
type HelpHandler struct {
	logger *logrus.Logger
}

func NewHelpHandler(logger *logrus.Logger) *HelpHandler {
	return &HelpHandler{logger: logger}
}

func (h *HelpHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	helpText := `📚 *CarpoolBot Help*

*Trip:*
• /trip <name> - Start the chat's trip, or rename it
• /deletetrip - Cancel the trip (creator only)
• /cars - Show all cars and who sits where
• /status - Show where you stand

*Driving:*
• /car <seats> [name] - Register your car
• /seats <n> - Change your car's capacity
• /delete - Remove your car (passengers lose their seats)
• /add @user ... - Seat people in your car directly
• /boot @user - Remove someone from your car

*Riding:*
• /needride - Show cars with free seats
• /in <car #> - Ask the driver for a seat
• /cancel - Withdraw your pending request
• /out - Give up your seat

_Drivers approve requests from the buttons I send them in private chat, so make sure you've started a chat with me._`

	msg := tgbotapi.NewMessage(message.Chat.ID, helpText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send help message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
	}).Info("Sent help message")

	return nil
}
