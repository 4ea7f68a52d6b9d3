package telegram

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/service"
)

// UserDirectory resolves user IDs to stored profiles for rendering names.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Notifier renders engine events into Telegram messages: announcements in
// the group chat and direct messages to the people a change affects. It is
// called after the state change has committed, so a delivery failure only
// means someone missed a message, never an inconsistent roster.
type Notifier struct {
	bot    *Bot
	users  UserDirectory
	logger *logrus.Logger
}

// NewNotifier creates a notifier sending through the given bot
func NewNotifier(bot *Bot, users UserDirectory, logger *logrus.Logger) *Notifier {
	return &Notifier{
		bot:    bot,
		users:  users,
		logger: logger,
	}
}

// Notify implements service.Dispatcher
func (n *Notifier) Notify(ctx context.Context, e service.Event) error {
	switch e.Kind {
	case service.EventTripCreated:
		return n.bot.SendMessage(e.ChatID, fmt.Sprintf("🚗 Trip *%s* is on! Drivers, register your cars with /car <seats> [name].", e.Name))

	case service.EventTripRenamed:
		return n.bot.SendMessage(e.ChatID, fmt.Sprintf("✏️ Trip renamed to *%s*.", e.Name))

	case service.EventTripDeleted:
		var result *multierror.Error
		result = multierror.Append(result, n.bot.SendMessage(e.ChatID,
			fmt.Sprintf("🗑 Trip *%s* was cancelled. All cars and seats are gone.", e.Name)))
		for _, uid := range e.Members {
			if uid == e.ActorID {
				continue
			}
			result = multierror.Append(result, n.bot.SendMessage(uid,
				fmt.Sprintf("Trip *%s* was cancelled, so your ride is off.", e.Name)))
		}
		return result.ErrorOrNil()

	case service.EventCarCreated:
		return n.bot.SendMessage(e.ChatID, fmt.Sprintf(
			"🚙 %s is driving%s with %d seats (car #%d). Ask for a seat with /in %d.",
			n.name(ctx, e.OwnerID), carLabel(e.Name), e.Seats, e.CarID, e.CarID))

	case service.EventCarUpdated:
		return n.bot.SendMessage(e.ChatID, fmt.Sprintf(
			"🔧 Car #%d now has %d seats.", e.CarID, e.Seats))

	case service.EventCarDeleted:
		var result *multierror.Error
		result = multierror.Append(result, n.bot.SendMessage(e.ChatID, fmt.Sprintf(
			"🚫 %s's car%s (#%d) is no longer going.", n.name(ctx, e.OwnerID), carLabel(e.Name), e.CarID)))
		for _, uid := range e.Members {
			result = multierror.Append(result, n.bot.SendMessage(uid,
				fmt.Sprintf("Your ride in car #%d fell through: the driver dropped out. Find another car with /cars.", e.CarID)))
		}
		return result.ErrorOrNil()

	case service.EventRequestCreated:
		return n.bot.SendWithKeyboard(e.OwnerID,
			fmt.Sprintf("🙋 %s wants a seat in your car #%d.", n.name(ctx, e.SubjectID), e.CarID),
			ApproveDenyKeyboard(e.ChatID, e.CarID, e.SubjectID))

	case service.EventRequestDenied:
		return n.bot.SendMessage(e.SubjectID, fmt.Sprintf(
			"😕 Your request for a seat in car #%d was denied. Try another car with /cars.", e.CarID))

	case service.EventRequestCancelled:
		if e.OwnerID == 0 {
			return nil
		}
		return n.bot.SendMessage(e.OwnerID, fmt.Sprintf(
			"↩️ %s withdrew their request for car #%d.", n.name(ctx, e.SubjectID), e.CarID))

	case service.EventMemberJoined:
		var result *multierror.Error
		result = multierror.Append(result, n.bot.SendMessage(e.ChatID, fmt.Sprintf(
			"✅ %s got a seat in %s's car #%d.", n.name(ctx, e.SubjectID), n.name(ctx, e.OwnerID), e.CarID)))
		result = multierror.Append(result, n.bot.SendMessage(e.SubjectID, fmt.Sprintf(
			"🎉 You're in! %s approved your seat in car #%d.", n.name(ctx, e.OwnerID), e.CarID)))
		return result.ErrorOrNil()

	case service.EventMemberAdded:
		var result *multierror.Error
		result = multierror.Append(result, n.bot.SendMessage(e.ChatID, fmt.Sprintf(
			"💺 %s added %s to their car #%d.", n.name(ctx, e.ActorID), n.name(ctx, e.SubjectID), e.CarID)))
		result = multierror.Append(result, n.bot.SendMessage(e.SubjectID, fmt.Sprintf(
			"🚗 You were added to %s's car #%d.", n.name(ctx, e.ActorID), e.CarID)))
		return result.ErrorOrNil()

	case service.EventMemberLeft:
		return n.bot.SendMessage(e.ChatID, fmt.Sprintf(
			"👋 %s gave up their seat in car #%d.", n.name(ctx, e.SubjectID), e.CarID))

	case service.EventMemberBooted:
		var result *multierror.Error
		result = multierror.Append(result, n.bot.SendMessage(e.ChatID, fmt.Sprintf(
			"🥾 %s was removed from car #%d.", n.name(ctx, e.SubjectID), e.CarID)))
		result = multierror.Append(result, n.bot.SendMessage(e.SubjectID, fmt.Sprintf(
			"You were removed from car #%d by the driver. Find another car with /cars.", e.CarID)))
		return result.ErrorOrNil()

	default:
		n.logger.WithField("kind", e.Kind).Warn("No rendering for event kind")
		return nil
	}
}

// name renders the best available display name for a user ID. Falls back to
// the bare ID when the user has never talked to the bot.
func (n *Notifier) name(ctx context.Context, id int64) string {
	u, err := n.users.GetUser(ctx, id)
	if err != nil || u == nil {
		return fmt.Sprintf("user %d", id)
	}
	return u.DisplayName()
}

func carLabel(name string) string {
	if name == "" {
		return ""
	}
	return " *" + name + "*"
}
