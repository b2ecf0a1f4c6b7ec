package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultPublishTimeout = 10 * time.Second
	reminderEventType     = "reservation.move_in_reminder"
)

// Notifier delivers move-in reminders for reservations.
type Notifier interface {
	SendReminder(ctx context.Context, reservation *models.Reservation) error
}

// ReminderPayload is the message body published for a reminder.
type ReminderPayload struct {
	EventID          string    `json:"event_id"`
	ReservationID    uuid.UUID `json:"reservation_id"`
	Code             string    `json:"code"`
	GuestID          uuid.UUID `json:"guest_id"`
	BranchID         uuid.UUID `json:"branch_id"`
	RoomID           uuid.UUID `json:"room_id"`
	Status           string    `json:"status"`
	MoveInDate       time.Time `json:"move_in_date"`
	ReminderDeadline time.Time `json:"reminder_deadline"`
	RiskDeadline     time.Time `json:"risk_deadline"`
	OccurredAt       time.Time `json:"occurred_at"`
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubNotifier publishes reminders to a Pub/Sub topic for the delivery
// service to pick up.
type PubSubNotifier struct {
	pub   publisher
	logg  *logger.Logger
	clock func() time.Time
}

// NewPubSubNotifier wraps a Pub/Sub publisher handle.
func NewPubSubNotifier(p *gcppubsub.Publisher, logg *logger.Logger) (*PubSubNotifier, error) {
	if p == nil {
		return nil, errors.New("reminder publisher required")
	}
	return newPubSubNotifier(&gcpPublisher{Publisher: p}, logg)
}

func newPubSubNotifier(pub publisher, logg *logger.Logger) (*PubSubNotifier, error) {
	if pub == nil {
		return nil, errors.New("reminder publisher required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &PubSubNotifier{pub: pub, logg: logg, clock: time.Now}, nil
}

func (n *PubSubNotifier) SendReminder(ctx context.Context, reservation *models.Reservation) error {
	if reservation == nil {
		return errors.New("reservation required")
	}
	payload := ReminderPayload{
		EventID:          uuid.NewString(),
		ReservationID:    reservation.ID,
		Code:             reservation.Code,
		GuestID:          reservation.GuestID,
		BranchID:         reservation.BranchID,
		RoomID:           reservation.RoomID,
		Status:           string(reservation.Status),
		MoveInDate:       reservation.MoveInDate,
		ReminderDeadline: reservation.ReminderDeadline,
		RiskDeadline:     reservation.RiskDeadline,
		OccurredAt:       n.clock().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}

	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id":       payload.EventID,
			"event_type":     reminderEventType,
			"reservation_id": reservation.ID.String(),
			"branch_id":      reservation.BranchID.String(),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := n.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	serverID, err := result.Get(publishCtx)
	if err != nil {
		return fmt.Errorf("publish reminder: %w", err)
	}
	n.logg.Info(n.logg.WithFields(ctx, map[string]any{
		"reservation_id": reservation.ID.String(),
		"message_id":     serverID,
	}), "reminder published")
	return nil
}

// LogNotifier only logs reminders. It is used when no topic is configured.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) SendReminder(ctx context.Context, reservation *models.Reservation) error {
	if reservation == nil {
		return errors.New("reservation required")
	}
	if n.logg != nil {
		n.logg.Info(n.logg.WithFields(ctx, map[string]any{
			"reservation_id": reservation.ID.String(),
			"code":           reservation.Code,
			"guest_id":       reservation.GuestID.String(),
			"move_in_date":   reservation.MoveInDate.Format(time.RFC3339),
		}), "move-in reminder due")
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
