package occupancy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/dormstay-backend/pkg/db"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) (*gorm.DB, *db.Client) {
	t.Helper()
	dsn := fmt.Sprintf("file:occupancy_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Room{}, &models.Bed{}, &models.Reservation{}))
	return conn, db.Wrap(conn)
}

func createRoom(t *testing.T, conn *gorm.DB, capacity int, labels ...string) *models.Room {
	t.Helper()
	room := &models.Room{
		BranchID:  uuid.New(),
		Number:    "101",
		Capacity:  capacity,
		Available: true,
	}
	for _, label := range labels {
		room.Beds = append(room.Beds, models.Bed{Label: label})
	}
	require.NoError(t, conn.Create(room).Error)
	return room
}

func insertReservation(t *testing.T, conn *gorm.DB, room *models.Room, status enums.ReservationStatus, bedID *uuid.UUID) *models.Reservation {
	t.Helper()
	now := time.Now().UTC()
	r := &models.Reservation{
		Code:             "RSV-" + uuid.NewString()[:8],
		GuestID:          uuid.New(),
		BranchID:         room.BranchID,
		RoomID:           room.ID,
		BedID:            bedID,
		Status:           status,
		MoveInDate:       now,
		ReminderDeadline: now.Add(24 * time.Hour),
		RiskDeadline:     now.Add(48 * time.Hour),
	}
	require.NoError(t, conn.Create(r).Error)
	return r
}

func loadRoom(t *testing.T, conn *gorm.DB, id uuid.UUID) *models.Room {
	t.Helper()
	room, err := NewRepository(conn).FindRoom(context.Background(), id)
	require.NoError(t, err)
	return room
}

func withStatus(r *models.Reservation, status enums.ReservationStatus) *models.Reservation {
	next := *r
	next.Status = status
	return &next
}

// counterValue sums the counter samples named name whose labels include labels.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	for key, value := range want {
		found := false
		for _, pair := range pairs {
			if pair.GetName() == key && pair.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
