// Package notify tells people about booking events.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"booking/internal/models"
)

// Notifier is told about every reservation the service accepts
type Notifier interface {
	ReservationCreated(ctx context.Context, reservation models.Reservation) error
}

// Nop drops every notification
type Nop struct{}

func (Nop) ReservationCreated(context.Context, models.Reservation) error { return nil }

// sender is the part of tgbotapi.BotAPI used here
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts a message to one chat per created reservation
type Telegram struct {
	api    sender
	chatID int64
	logger *zap.Logger
}

// RequestTimeout bounds every Bot API call
const RequestTimeout = 10 * time.Second

// NewTelegram connects to the Bot API with the given token
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: RequestTimeout})
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram notifier ready", zap.String("bot_username", api.Self.UserName), zap.Int64("chat_id", chatID))
	return &Telegram{api: api, chatID: chatID, logger: logger}, nil
}

// ReservationCreated sends the confirmation text to the configured chat.
// It returns when ctx is done even if the Bot API has not answered.
func (t *Telegram) ReservationCreated(ctx context.Context, reservation models.Reservation) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatReservation(reservation))

	sent := make(chan error, 1)
	go func() {
		_, err := t.api.Send(msg)
		sent <- err
	}()

	var err error
	select {
	case err = <-sent:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		t.logger.Error("Failed to send reservation notification",
			zap.String("reservation_id", reservation.ReservationID), zap.Error(err))
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// FormatReservation renders the notification text
func FormatReservation(r models.Reservation) string {
	resource := r.Resource.Title
	if resource == "" {
		resource = fmt.Sprintf("#%d", r.Resource.ID)
	}
	user := r.User.Login
	if user == "" {
		user = fmt.Sprintf("#%d", r.User.ID)
	}
	return fmt.Sprintf("✅ Reservation confirmed!\n\n🔖 %s\n📚 Resource: %s\n📅 Date: %s\n🕒 Time: %s - %s\n👤 User: %s",
		r.ReservationID,
		resource,
		r.StartTime.Format("2006-01-02"),
		r.StartTime.Format("15:04"),
		r.EndTime.Format("15:04"),
		user,
	)
}
