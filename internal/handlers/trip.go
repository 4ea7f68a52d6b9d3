package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/service"
)

// ---------------------------------------------------------------------------
// TripHandler – /trip <name>
// ---------------------------------------------------------------------------

// TripHandler handles the /trip command: creates the chat's trip or renames
// the existing one.
type TripHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(svc *service.Service, logger *logrus.Logger) *TripHandler {
	return &TripHandler{svc: svc, logger: logger}
}

// Handle processes the /trip command.
func (h *TripHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please give the trip a name.\nUsage: `/trip Ski weekend`")
		return nil
	}

	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "trip", err)
	}

	name := strings.Join(args, " ")
	trip, created, err := h.svc.UpsertTrip(ctx, message.Chat.ID, name, message.From.ID)
	if err != nil {
		return finish(bot, message, "trip", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"trip_id": trip.ID,
		"created": created,
	}).Info("Trip command handled")

	return finish(bot, message, "trip", nil)
}

// ---------------------------------------------------------------------------
// DeleteTripHandler – /deletetrip
// ---------------------------------------------------------------------------

// DeleteTripHandler handles the /deletetrip command. Creator-only; removes
// the trip with every car and seat on it.
type DeleteTripHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewDeleteTripHandler creates a new DeleteTripHandler.
func NewDeleteTripHandler(svc *service.Service, logger *logrus.Logger) *DeleteTripHandler {
	return &DeleteTripHandler{svc: svc, logger: logger}
}

// Handle processes the /deletetrip command.
func (h *DeleteTripHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "deletetrip", err)
	}

	err := h.svc.DeleteTrip(ctx, message.Chat.ID, message.From.ID)
	if errors.Is(err, models.ErrNotOwner) {
		reply(bot, message.Chat.ID, "🚫 Only the person who started the trip can delete it.")
		return finish(bot, message, "deletetrip", nil)
	}
	return finish(bot, message, "deletetrip", err)
}

// ---------------------------------------------------------------------------
// CarsHandler – /cars
// ---------------------------------------------------------------------------

// CarsHandler handles the /cars command: the full roster of the active trip.
type CarsHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewCarsHandler creates a new CarsHandler.
func NewCarsHandler(svc *service.Service, logger *logrus.Logger) *CarsHandler {
	return &CarsHandler{svc: svc, logger: logger}
}

// Handle processes the /cars command.
func (h *CarsHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()

	trip, err := h.svc.ActiveTrip(ctx, message.Chat.ID)
	if err != nil {
		return finish(bot, message, "cars", err)
	}
	if trip == nil {
		return finish(bot, message, "cars", models.ErrTripNotFound)
	}

	statuses, err := h.svc.ListCars(ctx, message.Chat.ID)
	if err != nil {
		return finish(bot, message, "cars", err)
	}

	if len(statuses) == 0 {
		reply(bot, message.Chat.ID, fmt.Sprintf(
			"🚗 *%s*\n\nNo cars yet. Drivers, register with `/car <seats> [name]`.", trip.Name))
		return finish(bot, message, "cars", nil)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🚗 *%s*\n\n", trip.Name))
	for _, cs := range statuses {
		sb.WriteString(renderCar(ctx, h.svc, cs))
		sb.WriteString("\n")
	}
	sb.WriteString("\nAsk for a seat with `/in <car #>`.")

	reply(bot, message.Chat.ID, sb.String())
	return finish(bot, message, "cars", nil)
}

// renderCar formats one car's roster line block.
func renderCar(ctx context.Context, svc *service.Service, cs *models.CarStatus) string {
	var sb strings.Builder

	label := ""
	if cs.Name != "" {
		label = fmt.Sprintf(" _%s_", cs.Name)
	}
	sb.WriteString(fmt.Sprintf("*#%d*%s — %s, %d/%d seats taken",
		cs.ID, label, displayName(ctx, svc, cs.OwnerID), cs.OccupiedSeats, cs.Seats))
	if cs.PendingCount > 0 {
		sb.WriteString(fmt.Sprintf(" (%d pending)", cs.PendingCount))
	}
	sb.WriteString("\n")

	for _, m := range cs.Members {
		sb.WriteString(fmt.Sprintf("  • %s\n", displayName(ctx, svc, m)))
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// StatusHandler – /status
// ---------------------------------------------------------------------------

// StatusHandler handles the /status command: the sender's own standing on
// the active trip.
type StatusHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(svc *service.Service, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{svc: svc, logger: logger}
}

// Handle processes the /status command.
func (h *StatusHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "status", err)
	}

	st, err := h.svc.SeatStatus(ctx, message.Chat.ID, message.From.ID)
	if err != nil {
		return finish(bot, message, "status", err)
	}

	var text string
	switch {
	case st.OwnedCar != nil:
		text = fmt.Sprintf("🚙 You're driving car *#%d* on *%s*: %d/%d seats taken.",
			st.OwnedCar.ID, st.Trip.Name, st.OwnedCar.OccupiedSeats, st.OwnedCar.Seats)
	case st.RideCar != nil:
		text = fmt.Sprintf("💺 You have a seat in %s's car *#%d* on *%s*.",
			displayName(ctx, h.svc, st.RideCar.OwnerID), st.RideCar.ID, st.Trip.Name)
	case st.Pending != nil:
		text = fmt.Sprintf("⏳ Your request for car *#%d* on *%s* is waiting for the driver.",
			st.Pending.CarID, st.Trip.Name)
	default:
		text = fmt.Sprintf("🤷 You have no seat on *%s* yet. See `/cars` and ask with `/in <car #>`.",
			st.Trip.Name)
	}

	reply(bot, message.Chat.ID, text)
	return finish(bot, message, "status", nil)
}
