package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	msgs []*gcppubsub.Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.msgs = append(f.msgs, msg)
	return fakeResult{err: f.err}
}

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "msg-1", nil
}

func testReservation() *models.Reservation {
	moveIn := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	return &models.Reservation{
		ID:               uuid.New(),
		Code:             "RSV-261016-000001",
		GuestID:          uuid.New(),
		BranchID:         uuid.New(),
		RoomID:           uuid.New(),
		Status:           enums.ReservationStatusPending,
		MoveInDate:       moveIn,
		ReminderDeadline: moveIn.Add(24 * time.Hour),
		RiskDeadline:     moveIn.Add(48 * time.Hour),
	}
}

func TestPubSubNotifierPublishesReminder(t *testing.T) {
	pub := &fakePublisher{}
	n, err := newPubSubNotifier(pub, logger.Nop())
	require.NoError(t, err)
	n.clock = func() time.Time { return time.Date(2026, 10, 21, 1, 0, 0, 0, time.UTC) }

	res := testReservation()
	require.NoError(t, n.SendReminder(context.Background(), res))
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	require.Equal(t, reminderEventType, msg.Attributes["event_type"])
	require.Equal(t, res.ID.String(), msg.Attributes["reservation_id"])

	var payload ReminderPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	require.Equal(t, res.Code, payload.Code)
	require.True(t, payload.MoveInDate.Equal(res.MoveInDate))
	require.Equal(t, msg.Attributes["event_id"], payload.EventID)
}

func TestPubSubNotifierSurfacesPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("deadline exceeded")}
	n, err := newPubSubNotifier(pub, logger.Nop())
	require.NoError(t, err)

	err = n.SendReminder(context.Background(), testReservation())
	require.ErrorContains(t, err, "deadline exceeded")
}

func TestNotifierConstructorsValidate(t *testing.T) {
	_, err := NewPubSubNotifier(nil, logger.Nop())
	require.Error(t, err)
	_, err = newPubSubNotifier(&fakePublisher{}, nil)
	require.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logger.Nop())
	require.NoError(t, n.SendReminder(context.Background(), testReservation()))
	require.Error(t, n.SendReminder(context.Background(), nil))
}
