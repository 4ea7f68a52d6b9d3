package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/service"
)

// ---------------------------------------------------------------------------
// CarHandler – /car <seats> [name]
// ---------------------------------------------------------------------------

// CarHandler handles the /car command: registers the sender as a driver with
// the given number of seats.
type CarHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewCarHandler creates a new CarHandler.
func NewCarHandler(svc *service.Service, logger *logrus.Logger) *CarHandler {
	return &CarHandler{svc: svc, logger: logger}
}

// Handle processes the /car command.
func (h *CarHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ How many seats?\nUsage: `/car 4` or `/car 4 Blue Octavia`")
		return nil
	}

	seats, err := strconv.Atoi(args[0])
	if err != nil {
		reply(bot, message.Chat.ID, fmt.Sprintf("❌ %q is not a number of seats.\nUsage: `/car 4 Blue Octavia`", args[0]))
		return nil
	}
	name := strings.Join(args[1:], " ")

	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "car", err)
	}

	car, err := h.svc.CreateCar(ctx, message.Chat.ID, name, seats, message.From.ID)
	if err != nil {
		return finish(bot, message, "car", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"car_id":  car.ID,
		"seats":   seats,
	}).Info("Car registered")

	return finish(bot, message, "car", nil)
}

// ---------------------------------------------------------------------------
// SeatsHandler – /seats <n>
// ---------------------------------------------------------------------------

// SeatsHandler handles the /seats command: changes the capacity of the
// sender's car.
type SeatsHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewSeatsHandler creates a new SeatsHandler.
func NewSeatsHandler(svc *service.Service, logger *logrus.Logger) *SeatsHandler {
	return &SeatsHandler{svc: svc, logger: logger}
}

// Handle processes the /seats command.
func (h *SeatsHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) != 1 {
		reply(bot, message.Chat.ID, "❌ Usage: `/seats 5`")
		return nil
	}
	seats, err := strconv.Atoi(args[0])
	if err != nil {
		reply(bot, message.Chat.ID, fmt.Sprintf("❌ %q is not a number of seats.", args[0]))
		return nil
	}

	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "seats", err)
	}

	_, err = h.svc.UpdateSeats(ctx, message.Chat.ID, seats, message.From.ID)
	return finish(bot, message, "seats", err)
}

// ---------------------------------------------------------------------------
// DeleteCarHandler – /delete
// ---------------------------------------------------------------------------

// DeleteCarHandler handles the /delete command: removes the sender's car
// along with every seat and pending request in it.
type DeleteCarHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewDeleteCarHandler creates a new DeleteCarHandler.
func NewDeleteCarHandler(svc *service.Service, logger *logrus.Logger) *DeleteCarHandler {
	return &DeleteCarHandler{svc: svc, logger: logger}
}

// Handle processes the /delete command.
func (h *DeleteCarHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "delete", err)
	}

	err := h.svc.DeleteCar(ctx, message.Chat.ID, message.From.ID)
	return finish(bot, message, "delete", err)
}
