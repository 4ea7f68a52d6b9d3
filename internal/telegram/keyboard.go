package telegram

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback actions routed by the Router. Callback data is colon-separated:
// action, then the fields the handler needs to replay the decision against
// the group chat's state.
const (
	CallbackApprove = "approve"
	CallbackDeny    = "deny"
)

// ApproveDenyKeyboard builds the inline keyboard attached to a join request
// DM. The group chat ID travels in the callback data because the decision is
// made in the owner's private chat.
func ApproveDenyKeyboard(chatID int64, carID int, userID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", callbackData(CallbackApprove, chatID, carID, userID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Deny", callbackData(CallbackDeny, chatID, carID, userID)),
		),
	)
}

func callbackData(action string, chatID int64, carID int, userID int64) string {
	return fmt.Sprintf("%s:%d:%d:%d", action, chatID, carID, userID)
}

// ParseCallbackArgs decodes the chatID/carID/userID triple produced by
// callbackData.
func ParseCallbackArgs(args []string) (chatID int64, carID int, userID int64, err error) {
	if len(args) != 3 {
		return 0, 0, 0, fmt.Errorf("expected 3 callback args, got %d", len(args))
	}
	chatID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid chat ID %q: %w", args[0], err)
	}
	carID, err = strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid car ID %q: %w", args[1], err)
	}
	userID, err = strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid user ID %q: %w", args[2], err)
	}
	return chatID, carID, userID, nil
}
