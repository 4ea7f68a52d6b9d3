package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/metrics"
	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/service"
	"github.com/avolkov/carpoolbot/internal/telegram"
)

// ---------------------------------------------------------------------------
// InHandler – /in <car #>
// ---------------------------------------------------------------------------

// InHandler handles the /in command: asks the driver of the given car for a
// seat. The driver decides by DM.
type InHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewInHandler creates a new InHandler.
func NewInHandler(svc *service.Service, logger *logrus.Logger) *InHandler {
	return &InHandler{svc: svc, logger: logger}
}

// Handle processes the /in command.
func (h *InHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) != 1 {
		reply(bot, message.Chat.ID, "❌ Which car?\nUsage: `/in 2` (see `/cars` for the numbers)")
		return nil
	}
	carID, err := strconv.Atoi(args[0])
	if err != nil {
		reply(bot, message.Chat.ID, fmt.Sprintf("❌ %q is not a car number. See `/cars`.", args[0]))
		return nil
	}

	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "in", err)
	}

	_, err = h.svc.SubmitJoinRequest(ctx, message.Chat.ID, carID, message.From.ID)
	if err != nil {
		return finish(bot, message, "in", err)
	}

	reply(bot, message.Chat.ID, fmt.Sprintf("📨 Asked the driver of car #%d for a seat. You'll hear back here.", carID))
	return finish(bot, message, "in", nil)
}

// ---------------------------------------------------------------------------
// NeedRideHandler – /needride
// ---------------------------------------------------------------------------

// NeedRideHandler handles the /needride command: lists only the cars that
// still have free seats.
type NeedRideHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewNeedRideHandler creates a new NeedRideHandler.
func NewNeedRideHandler(svc *service.Service, logger *logrus.Logger) *NeedRideHandler {
	return &NeedRideHandler{svc: svc, logger: logger}
}

// Handle processes the /needride command.
func (h *NeedRideHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()

	statuses, err := h.svc.ListCars(ctx, message.Chat.ID)
	if err != nil {
		return finish(bot, message, "needride", err)
	}

	var sb strings.Builder
	free := 0
	for _, cs := range statuses {
		if cs.AvailableSeats <= 0 {
			continue
		}
		free++
		label := ""
		if cs.Name != "" {
			label = fmt.Sprintf(" _%s_", cs.Name)
		}
		sb.WriteString(fmt.Sprintf("*#%d*%s — %s, %d free\n",
			cs.ID, label, displayName(ctx, h.svc, cs.OwnerID), cs.AvailableSeats))
	}

	if free == 0 {
		reply(bot, message.Chat.ID, "😔 No free seats right now. Maybe someone will register another car with `/car`.")
		return finish(bot, message, "needride", nil)
	}

	reply(bot, message.Chat.ID, "🪑 *Cars with free seats*\n\n"+sb.String()+"\nAsk with `/in <car #>`.")
	return finish(bot, message, "needride", nil)
}

// ---------------------------------------------------------------------------
// CancelHandler – /cancel
// ---------------------------------------------------------------------------

// CancelHandler handles the /cancel command: withdraws the sender's pending
// join request.
type CancelHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewCancelHandler creates a new CancelHandler.
func NewCancelHandler(svc *service.Service, logger *logrus.Logger) *CancelHandler {
	return &CancelHandler{svc: svc, logger: logger}
}

// Handle processes the /cancel command.
func (h *CancelHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "cancel", err)
	}

	req, err := h.svc.CancelRequest(ctx, message.Chat.ID, message.From.ID)
	if err != nil {
		return finish(bot, message, "cancel", err)
	}

	reply(bot, message.Chat.ID, fmt.Sprintf("↩️ Withdrew your request for car #%d.", req.CarID))
	return finish(bot, message, "cancel", nil)
}

// ---------------------------------------------------------------------------
// OutHandler – /out
// ---------------------------------------------------------------------------

// OutHandler handles the /out command: gives up the sender's seat. For a
// driver this deletes the whole car.
type OutHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewOutHandler creates a new OutHandler.
func NewOutHandler(svc *service.Service, logger *logrus.Logger) *OutHandler {
	return &OutHandler{svc: svc, logger: logger}
}

// Handle processes the /out command.
func (h *OutHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "out", err)
	}

	err := h.svc.Leave(ctx, message.Chat.ID, message.From.ID)
	if errors.Is(err, models.ErrNotAMember) {
		reply(bot, message.Chat.ID, "🤷 You don't have a seat on this trip.")
		return finish(bot, message, "out", nil)
	}
	return finish(bot, message, "out", err)
}

// ---------------------------------------------------------------------------
// BootHandler – /boot @user
// ---------------------------------------------------------------------------

// BootHandler handles the /boot command: removes a member from the sender's
// own car.
type BootHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewBootHandler creates a new BootHandler.
func NewBootHandler(svc *service.Service, logger *logrus.Logger) *BootHandler {
	return &BootHandler{svc: svc, logger: logger}
}

// Handle processes the /boot command.
func (h *BootHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) != 1 || !strings.HasPrefix(args[0], "@") {
		reply(bot, message.Chat.ID, "❌ Who?\nUsage: `/boot @username`")
		return nil
	}

	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "boot", err)
	}

	target, err := h.svc.ResolveUsername(ctx, strings.TrimPrefix(args[0], "@"))
	if err != nil {
		return finish(bot, message, "boot", err)
	}
	if target == nil {
		reply(bot, message.Chat.ID, fmt.Sprintf("🤷 I don't know %s. They need to have talked to me at least once.", args[0]))
		return finish(bot, message, "boot", nil)
	}

	err = h.svc.Boot(ctx, message.Chat.ID, target.ID, message.From.ID)
	return finish(bot, message, "boot", err)
}

// ---------------------------------------------------------------------------
// AddHandler – /add @user [@user...]
// ---------------------------------------------------------------------------

// AddHandler handles the /add command: the driver seats people in their own
// car directly, without the request round-trip.
type AddHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewAddHandler creates a new AddHandler.
func NewAddHandler(svc *service.Service, logger *logrus.Logger) *AddHandler {
	return &AddHandler{svc: svc, logger: logger}
}

// Handle processes the /add command.
func (h *AddHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Who?\nUsage: `/add @username [@username...]`")
		return nil
	}

	ctx := context.Background()
	if _, err := ensureUser(ctx, h.svc, message.From); err != nil {
		return finish(bot, message, "add", err)
	}

	var targets []int64
	var unknown []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "@") {
			reply(bot, message.Chat.ID, fmt.Sprintf("❌ %q doesn't look like a username. Usage: `/add @username`", arg))
			return nil
		}
		u, err := h.svc.ResolveUsername(ctx, strings.TrimPrefix(arg, "@"))
		if err != nil {
			return finish(bot, message, "add", err)
		}
		if u == nil {
			unknown = append(unknown, arg)
			continue
		}
		targets = append(targets, u.ID)
	}

	if len(targets) == 0 {
		reply(bot, message.Chat.ID, fmt.Sprintf("🤷 I don't know %s. They need to have talked to me at least once.", strings.Join(unknown, ", ")))
		return finish(bot, message, "add", nil)
	}

	res, err := h.svc.AddMembers(ctx, message.Chat.ID, targets, message.From.ID)
	if errors.Is(err, models.ErrCarFull) {
		reply(bot, message.Chat.ID, "😔 Not enough free seats in your car for that. `/seats` can make room.")
		metrics.CommandsTotal.WithLabelValues("add", "rejected").Inc()
		return nil
	}
	if err != nil {
		return finish(bot, message, "add", err)
	}

	var parts []string
	if len(res.Added) > 0 {
		parts = append(parts, fmt.Sprintf("✅ Seated %s in your car #%d.", nameList(ctx, h.svc, res.Added), res.Car.ID))
	}
	if len(res.Skipped) > 0 {
		parts = append(parts, fmt.Sprintf("✋ Already seated on this trip: %s.", nameList(ctx, h.svc, res.Skipped)))
	}
	if len(unknown) > 0 {
		parts = append(parts, fmt.Sprintf("🤷 Unknown: %s.", strings.Join(unknown, ", ")))
	}
	reply(bot, message.Chat.ID, strings.Join(parts, "\n"))
	return finish(bot, message, "add", nil)
}

// nameList renders a comma-separated list of display names.
func nameList(ctx context.Context, svc *service.Service, ids []int64) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, displayName(ctx, svc, id))
	}
	return strings.Join(names, ", ")
}

// ---------------------------------------------------------------------------
// ChatLeftHandler – user left the group
// ---------------------------------------------------------------------------

// ChatLeftHandler frees the seat of a user who left the group chat. Someone
// gone from the chat can't ride, so leaving the chat means leaving the trip.
type ChatLeftHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewChatLeftHandler creates a new ChatLeftHandler.
func NewChatLeftHandler(svc *service.Service, logger *logrus.Logger) *ChatLeftHandler {
	return &ChatLeftHandler{svc: svc, logger: logger}
}

// HandleMemberLeft processes one left-chat-member update.
func (h *ChatLeftHandler) HandleMemberLeft(bot *tgbotapi.BotAPI, message *tgbotapi.Message, left *tgbotapi.User) error {
	if left.IsBot {
		return nil
	}

	ctx := context.Background()
	err := h.svc.Leave(ctx, message.Chat.ID, left.ID)
	if errors.Is(err, models.ErrTripNotFound) || errors.Is(err, models.ErrNotAMember) {
		// Nothing to free; most people who leave a chat hold no seat.
		return nil
	}
	if err != nil {
		return fmt.Errorf("free seat for departed user %d: %w", left.ID, err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": left.ID,
	}).Info("Freed seat of user who left the chat")
	return nil
}

// ---------------------------------------------------------------------------
// ApprovalCallback – inline Approve/Deny buttons
// ---------------------------------------------------------------------------

// ApprovalCallback resolves a join request from the inline keyboard in the
// driver's DM. Registered for both the approve and the deny action; the
// approve flag picks the branch.
type ApprovalCallback struct {
	svc     *service.Service
	logger  *logrus.Logger
	approve bool
}

// NewApprovalCallback creates a callback handler for the given decision.
func NewApprovalCallback(svc *service.Service, logger *logrus.Logger, approve bool) *ApprovalCallback {
	return &ApprovalCallback{svc: svc, logger: logger, approve: approve}
}

// HandleCallback processes one button press.
func (c *ApprovalCallback) HandleCallback(bot *tgbotapi.BotAPI, query *tgbotapi.CallbackQuery, args []string) error {
	chatID, carID, userID, err := telegram.ParseCallbackArgs(args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	action := telegram.CallbackDeny
	if c.approve {
		action = telegram.CallbackApprove
	}

	if c.approve {
		err = c.svc.ApproveRequest(ctx, chatID, carID, userID, query.From.ID)
	} else {
		err = c.svc.DenyRequest(ctx, chatID, carID, userID, query.From.ID)
	}

	result, status, ok := callbackOutcome(err, c.approve)
	if !ok {
		metrics.CommandsTotal.WithLabelValues(action, "error").Inc()
		return fmt.Errorf("%s callback: %w", action, err)
	}
	metrics.CommandsTotal.WithLabelValues(action, status).Inc()

	// Replace the button message so the decision can't be made twice from
	// the same keyboard.
	if query.Message != nil {
		edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID,
			query.Message.Text+"\n\n"+result)
		bot.Send(edit)
	}
	return nil
}

// callbackOutcome maps a decision result to the text shown under the button
// message and the metrics status. Mirrors finish(): nil is ok, a mapped
// domain error is rejected, anything else is internal (ok=false).
func callbackOutcome(err error, approve bool) (result, status string, ok bool) {
	switch {
	case err == nil && approve:
		return "✅ Approved.", "ok", true
	case err == nil:
		return "❌ Denied.", "ok", true
	case errors.Is(err, models.ErrCarFull):
		return "😔 Your car is full, so the request was denied instead.", "rejected", true
	case errors.Is(err, models.ErrAlreadyResolved):
		return "ℹ️ That request was already decided.", "rejected", true
	case errors.Is(err, models.ErrAlreadyMember):
		return "ℹ️ They already found a seat elsewhere.", "rejected", true
	}
	if text, mapped := userError(err); mapped {
		return text, "rejected", true
	}
	return "", "", false
}
