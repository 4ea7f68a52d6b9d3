package handlers

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/avolkov/carpoolbot/internal/metrics"
	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/service"
)

// reply sends a markdown message to the chat, ignoring send errors. Command
// handlers use it for every user-facing response.
func reply(bot *tgbotapi.BotAPI, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	bot.Send(msg)
}

// ensureUser records the sender's profile so username lookups and DM
// routing work for later commands.
func ensureUser(ctx context.Context, svc *service.Service, from *tgbotapi.User) (*models.User, error) {
	return svc.EnsureUser(ctx, &models.User{
		ID:        from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	})
}

// displayName resolves a user ID to the stored display name, falling back
// to the bare ID for users who never talked to the bot.
func displayName(ctx context.Context, svc *service.Service, id int64) string {
	u, err := svc.GetUser(ctx, id)
	if err != nil || u == nil {
		return fmt.Sprintf("user %d", id)
	}
	return u.DisplayName()
}

// userError maps domain errors to user-facing replies. Errors without a
// mapping are internal and propagate to the router.
func userError(err error) (string, bool) {
	switch {
	case errors.Is(err, models.ErrTripNotFound):
		return "🤷 There is no active trip in this chat. Start one with `/trip <name>`.", true
	case errors.Is(err, models.ErrCarNotFound):
		return "🤷 No such car. Check `/cars` for the current list.", true
	case errors.Is(err, models.ErrNotOwner):
		return "🚫 You don't have a car on this trip.", true
	case errors.Is(err, models.ErrNotAMember):
		return "🤷 No seat to take away there.", true
	case errors.Is(err, models.ErrAlreadyMember):
		return "✋ You already hold a seat on this trip. `/out` first if you want to move.", true
	case errors.Is(err, models.ErrDuplicateRequest):
		return "⏳ You already have a pending request. `/cancel` it before asking elsewhere.", true
	case errors.Is(err, models.ErrCarFull):
		return "😔 That car is full. Check `/cars` for free seats.", true
	case errors.Is(err, models.ErrInvalidCapacity):
		return "🚫 Seat count must be at least 1 and can't go below the people already in the car.", true
	case errors.Is(err, models.ErrCannotBootSelf):
		return "🙃 You can't boot yourself. Use `/out` to leave or `/delete` to drop your car.", true
	case errors.Is(err, models.ErrRequestNotFound):
		return "🤷 There is no pending request to act on.", true
	case errors.Is(err, models.ErrAlreadyResolved):
		return "ℹ️ That request was already decided.", true
	case errors.Is(err, models.ErrStoreUnavailable):
		return "😵 Storage hiccup, please try again in a moment.", true
	default:
		return "", false
	}
}

// finish records the command outcome and turns domain errors into chat
// replies. Internal errors propagate so the router logs them and shows the
// generic failure message.
func finish(bot *tgbotapi.BotAPI, message *tgbotapi.Message, command string, err error) error {
	if err == nil {
		metrics.CommandsTotal.WithLabelValues(command, "ok").Inc()
		return nil
	}
	if text, ok := userError(err); ok {
		metrics.CommandsTotal.WithLabelValues(command, "rejected").Inc()
		reply(bot, message.Chat.ID, text)
		return nil
	}
	metrics.CommandsTotal.WithLabelValues(command, "error").Inc()
	return fmt.Errorf("%s: %w", command, err)
}
