// Package notify hands broadcasts to the chat delivery side. The engine only
// guarantees the hand-off; whether a message reaches the chat is not its
// concern.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

const EventSubstitutionAttempt = "substitution_attempt"

type Sink interface {
	Notify(ctx context.Context, channelID, text string, action *model.CallToAction) error
}

// Outbox stores notifications for a delivery worker to pick up.
type Outbox struct {
	notifications repository.NotificationRepository
	now           func() time.Time
}

func NewOutbox(notifications repository.NotificationRepository) *Outbox {
	return &Outbox{
		notifications: notifications,
		now:           time.Now,
	}
}

func (o *Outbox) Notify(ctx context.Context, channelID, text string, action *model.CallToAction) error {
	if channelID == "" {
		return errors.New("empty channel id")
	}

	n := &model.Notification{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Text:      text,
		Action:    action,
		CreatedAt: o.now().UTC(),
	}

	if err := o.notifications.Create(ctx, n); err != nil {
		return errors.Wrap(err, "store notification")
	}

	logger.FromContext(ctx).Debug("notification queued",
		zap.String("notification_id", n.ID),
		zap.String("channel_id", channelID))

	return nil
}

func (o *Outbox) List(ctx context.Context, channelID string, limit int) ([]*model.Notification, error) {
	return o.notifications.List(ctx, channelID, limit)
}
