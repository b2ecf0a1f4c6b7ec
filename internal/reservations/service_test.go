package reservations

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/dormstay-backend/internal/audit"
	"github.com/angelmondragon/dormstay-backend/internal/occupancy"
	"github.com/angelmondragon/dormstay-backend/internal/users"
	"github.com/angelmondragon/dormstay-backend/pkg/db"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	conn   *gorm.DB
	client *db.Client
	svc    Service
	repo   *Repository
	users  *users.Repository
	audit  *audit.Repository
	locker *occupancy.LocalLocker
	branch models.Branch
	guest  *models.User
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:reservations_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	f := &fixture{
		conn:   conn,
		client: db.Wrap(conn),
		repo:   NewRepository(conn),
		users:  users.NewRepository(conn),
		audit:  audit.NewRepository(conn),
		locker: occupancy.NewLocalLocker(2 * time.Second),
		now:    time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}

	f.branch = models.Branch{Name: "North Hall", Code: "NH"}
	require.NoError(t, conn.Create(&f.branch).Error)
	f.guest, err = f.users.Create(context.Background(), users.CreateUserDTO{
		Email:     "guest@example.com",
		FirstName: "Lia",
		LastName:  "Santos",
	})
	require.NoError(t, err)

	reconciler, err := occupancy.NewReconciler(logger.Nop(), nil)
	require.NoError(t, err)
	f.svc, err = NewService(ServiceParams{
		DB:         f.client,
		Repo:       f.repo,
		Reconciler: reconciler,
		Locker:     f.locker,
		Audit:      f.audit,
		Promoter:   f.users,
		Guests:     f.users,
		Logger:     logger.Nop(),
		Clock:      func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) room(t *testing.T, capacity int, labels ...string) *models.Room {
	t.Helper()
	room := &models.Room{
		BranchID:  f.branch.ID,
		Number:    fmt.Sprintf("R-%s", uuid.NewString()[:4]),
		Capacity:  capacity,
		Available: true,
	}
	for _, label := range labels {
		room.Beds = append(room.Beds, models.Bed{Label: label})
	}
	require.NoError(t, f.conn.Create(room).Error)
	return room
}

func (f *fixture) reserve(t *testing.T, room *models.Room, bedID *uuid.UUID, payment enums.PaymentStatus) *models.Reservation {
	t.Helper()
	result, err := f.svc.Create(context.Background(), CreateInput{
		GuestID:       f.guest.ID,
		RoomID:        room.ID,
		BedID:         bedID,
		MoveInDate:    f.now.Add(48 * time.Hour),
		PaymentStatus: payment,
		DepositAmount: decimal.NewFromInt(1500),
	})
	require.NoError(t, err)
	require.True(t, result.Changed)
	return result.Reservation
}

func (f *fixture) loadRoom(t *testing.T, id uuid.UUID) *models.Room {
	t.Helper()
	room, err := occupancy.NewRepository(f.conn).FindRoom(context.Background(), id)
	require.NoError(t, err)
	return room
}

// requireConsistent checks the stored projection against the reservations.
func (f *fixture) requireConsistent(t *testing.T, roomID uuid.UUID) *models.Room {
	t.Helper()
	room := f.loadRoom(t, roomID)

	var rows []models.Reservation
	require.NoError(t, f.conn.Where("room_id = ?", roomID).Find(&rows).Error)
	holders := 0
	bedHolders := map[uuid.UUID]uuid.UUID{}
	for _, r := range rows {
		if r.HoldsSlot() {
			holders++
			if r.BedID != nil {
				bedHolders[*r.BedID] = r.ID
			}
		}
	}
	require.Equal(t, holders, room.Occupancy, "occupancy must equal slot holders")
	require.GreaterOrEqual(t, room.Occupancy, 0)
	require.LessOrEqual(t, room.Occupancy, room.Capacity)
	require.Equal(t, room.IsAvailable(), room.Available)
	for _, bed := range room.Beds {
		holder, held := bedHolders[bed.ID]
		require.Equal(t, held, bed.Occupied, "bed %s occupied flag", bed.Label)
		if held {
			require.NotNil(t, bed.OccupantReservationID)
			require.Equal(t, holder, *bed.OccupantReservationID)
		}
	}
	return room
}

func verified() *enums.PaymentStatus {
	v := enums.PaymentStatusVerified
	return &v
}

func ptr[T any](v T) *T { return &v }

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCreateDerivesDeadlinesAndKeepsSlotFree(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 2, "B1", "B2")
	bed := room.Beds[0].ID

	res := f.reserve(t, room, &bed, "")

	require.Equal(t, enums.ReservationStatusPending, res.Status)
	require.Equal(t, enums.PaymentStatusUnpaid, res.PaymentStatus)
	require.True(t, strings.HasPrefix(res.Code, "RSV-261016-"), res.Code)
	require.Equal(t, f.branch.ID, res.BranchID)
	require.True(t, res.ReminderDeadline.Equal(res.MoveInDate.Add(24*time.Hour)))
	require.True(t, res.RiskDeadline.Equal(res.MoveInDate.Add(48*time.Hour)))
	require.False(t, res.ReminderSent)
	require.False(t, res.AtRisk)

	stored := f.requireConsistent(t, room.ID)
	require.Equal(t, 0, stored.Occupancy)
	require.True(t, stored.Available)

	trail, err := f.audit.ForEntity(context.Background(), enums.AuditEntityReservation, res.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, string(enums.AuditReservationCreated), trail[0].Action)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 1, "B1")
	other := f.room(t, 1, "B1")
	ctx := context.Background()

	base := CreateInput{GuestID: f.guest.ID, RoomID: room.ID, MoveInDate: f.now.Add(24 * time.Hour)}

	cases := []struct {
		name   string
		mutate func(in *CreateInput)
		code   pkgerrors.Code
	}{
		{"missing guest", func(in *CreateInput) { in.GuestID = uuid.Nil }, pkgerrors.CodeValidation},
		{"unknown guest", func(in *CreateInput) { in.GuestID = uuid.New() }, pkgerrors.CodeValidation},
		{"missing move-in", func(in *CreateInput) { in.MoveInDate = time.Time{} }, pkgerrors.CodeValidation},
		{"move-in yesterday", func(in *CreateInput) { in.MoveInDate = f.now.AddDate(0, 0, -1) }, pkgerrors.CodeDateOutOfRange},
		{"move-in past horizon", func(in *CreateInput) { in.MoveInDate = f.now.AddDate(0, 4, 0) }, pkgerrors.CodeDateOutOfRange},
		{"negative deposit", func(in *CreateInput) { in.DepositAmount = decimal.NewFromInt(-1) }, pkgerrors.CodeValidation},
		{"bad payment status", func(in *CreateInput) { in.PaymentStatus = "gift" }, pkgerrors.CodeValidation},
		{"unknown room", func(in *CreateInput) { in.RoomID = uuid.New() }, pkgerrors.CodeRoomNotFound},
		{"room outside scope", func(in *CreateInput) { in.Scope = Scope{BranchID: ptr(uuid.New())} }, pkgerrors.CodeRoomNotFound},
		{"bed on another room", func(in *CreateInput) { in.BedID = &other.Beds[0].ID }, pkgerrors.CodeBedNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := f.svc.Create(ctx, in)
			require.Error(t, err)
			require.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, f.conn.Model(&models.Reservation{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateRejectsArchivedRoom(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 1)
	require.NoError(t, f.conn.Model(room).Update("archived", true).Error)

	_, err := f.svc.Create(context.Background(), CreateInput{GuestID: f.guest.ID, RoomID: room.ID, MoveInDate: f.now})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRoomNotFound))
}

func TestConfirmThenCancelReleasesSlotAndBed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	room := f.room(t, 2, "B1", "B2")
	b1 := room.Beds[0]
	res := f.reserve(t, room, &b1.ID, enums.PaymentStatusPendingVerification)

	_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: res.ID, Status: enums.ReservationStatusConfirmed})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "confirm requires verified payment")
	require.Equal(t, 0, f.requireConsistent(t, room.ID).Occupancy)

	confirmed, err := f.svc.UpdateStatus(ctx, StatusInput{
		ReservationID: res.ID,
		Status:        enums.ReservationStatusConfirmed,
		PaymentStatus: verified(),
		ActorID:       &actor,
	})
	require.NoError(t, err)
	require.True(t, confirmed.Changed)
	require.Equal(t, enums.ReservationStatusConfirmed, confirmed.Reservation.Status)
	require.Equal(t, enums.PaymentStatusPaid, confirmed.Reservation.PaymentStatus)
	require.Equal(t, actor, *confirmed.Reservation.ApprovedBy)
	require.Equal(t, 1, confirmed.Room.Occupancy)
	require.True(t, confirmed.Room.Available)

	stored := f.requireConsistent(t, room.ID)
	require.Equal(t, 1, stored.Occupancy)
	require.True(t, stored.Beds[0].Occupied)
	require.Equal(t, f.guest.ID, *stored.Beds[0].OccupantGuestID)

	cancelled, err := f.svc.UpdateStatus(ctx, StatusInput{
		ReservationID: res.ID,
		Status:        enums.ReservationStatusCancelled,
		Reason:        ptr(" guest changed plans "),
	})
	require.NoError(t, err)
	require.Equal(t, "guest changed plans", *cancelled.Reservation.CancelReason)
	require.NotNil(t, cancelled.Reservation.CancelledAt)

	stored = f.requireConsistent(t, room.ID)
	require.Equal(t, 0, stored.Occupancy)
	require.False(t, stored.Beds[0].Occupied)
	require.Nil(t, stored.Beds[0].OccupantReservationID)
	require.Nil(t, stored.Beds[0].OccupantGuestID)

	trail, err := f.audit.ForEntity(ctx, enums.AuditEntityReservation, res.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	require.Equal(t, string(enums.AuditReservationStatusChanged), trail[2].Action)
}

func TestUpdateStatusIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 3)
	res := f.reserve(t, room, nil, enums.PaymentStatusVerified)

	in := StatusInput{ReservationID: res.ID, Status: enums.ReservationStatusConfirmed}
	first, err := f.svc.UpdateStatus(ctx, in)
	require.NoError(t, err)
	require.True(t, first.Changed)

	second, err := f.svc.UpdateStatus(ctx, in)
	require.NoError(t, err)
	require.False(t, second.Changed)
	require.Nil(t, second.Room)
	require.Equal(t, 1, f.requireConsistent(t, room.ID).Occupancy)

	trail, err := f.audit.ForEntity(ctx, enums.AuditEntityReservation, res.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2, "no-op must not be audited")
}

func TestUpdateStatusRejectsTransitionsOutsideTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 2)

	cancelled := f.reserve(t, room, nil, enums.PaymentStatusVerified)
	_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: cancelled.ID, Status: enums.ReservationStatusCancelled})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, StatusInput{ReservationID: cancelled.ID, Status: enums.ReservationStatusConfirmed})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	typed := pkgerrors.As(err)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, "cancelled", details["from"])
	require.Equal(t, "confirmed", details["to"])

	pending := f.reserve(t, room, nil, "")
	_, err = f.svc.UpdateStatus(ctx, StatusInput{ReservationID: pending.ID, Status: enums.ReservationStatusCheckedOut})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = f.svc.UpdateStatus(ctx, StatusInput{ReservationID: pending.ID, Status: enums.ReservationStatusAtRisk})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "risk deadline not reached")

	_, err = f.svc.UpdateStatus(ctx, StatusInput{ReservationID: pending.ID, Status: "moved_out"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateStatus(ctx, StatusInput{ReservationID: uuid.New(), Status: enums.ReservationStatusConfirmed})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReservationNotFound))

	f.requireConsistent(t, room.ID)
}

func TestCheckInPromotesGuestAndCheckOutFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 1, "B1")
	bed := room.Beds[0].ID
	res := f.reserve(t, room, &bed, "")

	in, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: res.ID, Status: enums.ReservationStatusCheckedIn})
	require.NoError(t, err)
	require.NotNil(t, in.Reservation.CheckedInAt)
	require.Equal(t, 1, in.Room.Occupancy)
	require.False(t, in.Room.Available)

	guest, err := f.users.FindByID(ctx, f.guest.ID)
	require.NoError(t, err)
	require.Equal(t, enums.UserRoleTenant, guest.Role)
	require.NotNil(t, guest.TenantFrom)

	out, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: res.ID, Status: enums.ReservationStatusCheckedOut})
	require.NoError(t, err)
	require.NotNil(t, out.Reservation.CheckOutDate)
	require.Equal(t, 0, out.Room.Occupancy)
	require.True(t, out.Room.Available)
	f.requireConsistent(t, room.ID)
}

func TestConfirmAtCapacityConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 1)
	first := f.reserve(t, room, nil, enums.PaymentStatusVerified)
	second := f.reserve(t, room, nil, enums.PaymentStatusVerified)

	_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: first.ID, Status: enums.ReservationStatusConfirmed})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, StatusInput{ReservationID: second.ID, Status: enums.ReservationStatusConfirmed})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReconciliationConflict))
	require.True(t, pkgerrors.IsRetryable(err))

	got, err := f.svc.Get(ctx, second.ID, Scope{})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusPending, got.Status, "failed transition must roll back")
	require.Equal(t, 1, f.requireConsistent(t, room.ID).Occupancy)
}

func TestConcurrentConfirmsSerializePerRoom(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 1)
	a := f.reserve(t, room, nil, enums.PaymentStatusVerified)
	b := f.reserve(t, room, nil, enums.PaymentStatusVerified)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uuid.UUID{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.UpdateStatus(context.Background(), StatusInput{ReservationID: id, Status: enums.ReservationStatusConfirmed})
		}(i, id)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.IsCode(err, pkgerrors.CodeReconciliationConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, conflicted)
	require.Equal(t, 1, f.requireConsistent(t, room.ID).Occupancy)
}

func TestMarkAtRiskKeepsSlotAndExtendClearsRisk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 1, "B1")
	bed := room.Beds[0].ID
	res := f.reserve(t, room, &bed, enums.PaymentStatusVerified)
	_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: res.ID, Status: enums.ReservationStatusConfirmed})
	require.NoError(t, err)

	early, err := f.svc.MarkAtRisk(ctx, res.ID, res.RiskDeadline.Add(-time.Minute))
	require.NoError(t, err)
	require.False(t, early.Changed)

	due := res.RiskDeadline.Add(time.Hour)
	flagged, err := f.svc.MarkAtRisk(ctx, res.ID, due)
	require.NoError(t, err)
	require.True(t, flagged.Changed)
	require.Equal(t, enums.ReservationStatusAtRisk, flagged.Reservation.Status)
	require.Equal(t, enums.ReservationStatusConfirmed, *flagged.Reservation.PreRiskStatus)
	require.True(t, flagged.Reservation.AtRisk)
	require.True(t, flagged.Reservation.AtRiskAt.Equal(due))
	require.Equal(t, 1, f.requireConsistent(t, room.ID).Occupancy, "at-risk keeps its slot")

	again, err := f.svc.MarkAtRisk(ctx, res.ID, due.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, again.Changed)

	extended, err := f.svc.Extend(ctx, ExtendInput{ReservationID: res.ID, Days: 7, Note: ptr("paid late")})
	require.NoError(t, err)
	got := extended.Reservation
	require.Equal(t, enums.ReservationStatusConfirmed, got.Status)
	require.Nil(t, got.PreRiskStatus)
	require.False(t, got.AtRisk)
	require.Nil(t, got.AtRiskAt)
	require.False(t, got.ReminderSent)
	require.Equal(t, 1, got.ExtensionCount)
	require.True(t, got.MoveInDate.Equal(res.MoveInDate.AddDate(0, 0, 7)))
	require.True(t, got.FinalMoveInDate.Equal(got.MoveInDate))
	require.True(t, got.ReminderDeadline.Equal(got.MoveInDate.Add(24*time.Hour)))
	require.True(t, got.RiskDeadline.Equal(got.MoveInDate.Add(48*time.Hour)))
	require.Equal(t, 1, f.requireConsistent(t, room.ID).Occupancy)

	trail, err := f.audit.ForEntity(ctx, enums.AuditEntityReservation, res.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(trail))
	for _, entry := range trail {
		actions = append(actions, entry.Action)
	}
	require.Equal(t, []string{
		string(enums.AuditReservationCreated),
		string(enums.AuditReservationStatusChanged),
		string(enums.AuditReservationAtRisk),
		string(enums.AuditReservationExtended),
	}, actions)
}

func TestExtendPendingStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 1)
	res := f.reserve(t, room, nil, "")

	extended, err := f.svc.Extend(ctx, ExtendInput{ReservationID: res.ID, Days: 3})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusPending, extended.Reservation.Status)
	require.Equal(t, 0, f.requireConsistent(t, room.ID).Occupancy)

	_, err = f.svc.Extend(ctx, ExtendInput{ReservationID: res.ID, Days: 0})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.Extend(ctx, ExtendInput{ReservationID: res.ID, Days: defaultMaxExtensionDays + 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateStatus(ctx, StatusInput{ReservationID: res.ID, Status: enums.ReservationStatusCheckedIn})
	require.NoError(t, err)
	_, err = f.svc.Extend(ctx, ExtendInput{ReservationID: res.ID, Days: 3})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestExtendKeepsSlotStateWhateverThePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 1)
	holder := f.reserve(t, room, nil, enums.PaymentStatusVerified)
	_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: holder.ID, Status: enums.ReservationStatusConfirmed})
	require.NoError(t, err)

	// verified payment but no slot: the room is already full
	waiting := f.reserve(t, room, nil, enums.PaymentStatusVerified)
	extended, err := f.svc.Extend(ctx, ExtendInput{ReservationID: waiting.ID, Days: 2})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusPending, extended.Reservation.Status)
	require.Equal(t, enums.PaymentStatusVerified, extended.Reservation.PaymentStatus)
	require.Nil(t, extended.Reservation.ApprovedBy)
	require.Equal(t, 1, f.requireConsistent(t, room.ID).Occupancy)

	flagged, err := f.svc.MarkAtRisk(ctx, waiting.ID, extended.Reservation.RiskDeadline.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, flagged.Changed)
	extended, err = f.svc.Extend(ctx, ExtendInput{ReservationID: waiting.ID, Days: 2})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusPending, extended.Reservation.Status)
	require.Equal(t, 1, f.requireConsistent(t, room.ID).Occupancy)
}

func TestReleaseFreesAtRiskSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 1, "B1")
	bed := room.Beds[0].ID
	res := f.reserve(t, room, &bed, enums.PaymentStatusPaid)
	_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: res.ID, Status: enums.ReservationStatusConfirmed})
	require.NoError(t, err)
	_, err = f.svc.MarkAtRisk(ctx, res.ID, res.RiskDeadline)
	require.NoError(t, err)

	_, err = f.svc.Release(ctx, ReleaseInput{ReservationID: res.ID, Reason: "  "})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	released, err := f.svc.Release(ctx, ReleaseInput{ReservationID: res.ID, Reason: "no show"})
	require.NoError(t, err)
	require.True(t, released.Changed)
	require.Equal(t, enums.ReservationStatusCancelled, released.Reservation.Status)
	require.False(t, released.Reservation.AtRisk)
	require.Nil(t, released.Reservation.PreRiskStatus)
	require.Equal(t, "no show", *released.Reservation.CancelReason)
	stored := f.requireConsistent(t, room.ID)
	require.Equal(t, 0, stored.Occupancy)
	require.False(t, stored.Beds[0].Occupied)

	again, err := f.svc.Release(ctx, ReleaseInput{ReservationID: res.ID, Reason: "no show"})
	require.NoError(t, err)
	require.False(t, again.Changed)
}

func TestArchiveReleasesSlotWithoutChangingStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	room := f.room(t, 2, "B1")
	bed := room.Beds[0].ID

	res := f.reserve(t, room, &bed, enums.PaymentStatusVerified)
	_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: res.ID, Status: enums.ReservationStatusConfirmed})
	require.NoError(t, err)

	archived, err := f.svc.Archive(ctx, ArchiveInput{ReservationID: res.ID, Reason: ptr("duplicate"), ActorID: &actor})
	require.NoError(t, err)
	require.True(t, archived.Reservation.Archived)
	require.Equal(t, enums.ReservationStatusConfirmed, archived.Reservation.Status)
	require.Equal(t, actor, *archived.Reservation.ArchivedBy)
	stored := f.requireConsistent(t, room.ID)
	require.Equal(t, 0, stored.Occupancy)
	require.False(t, stored.Beds[0].Occupied)

	again, err := f.svc.Archive(ctx, ArchiveInput{ReservationID: res.ID})
	require.NoError(t, err)
	require.False(t, again.Changed)

	_, err = f.svc.UpdateStatus(ctx, StatusInput{ReservationID: res.ID, Status: enums.ReservationStatusCheckedIn})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	list, err := f.svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, list.Items)
	list, err = f.svc.List(ctx, ListFilter{IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	resident := f.reserve(t, room, nil, "")
	_, err = f.svc.UpdateStatus(ctx, StatusInput{ReservationID: resident.ID, Status: enums.ReservationStatusCheckedIn})
	require.NoError(t, err)
	_, err = f.svc.Archive(ctx, ArchiveInput{ReservationID: resident.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	require.Equal(t, 1, f.requireConsistent(t, room.ID).Occupancy)
}

func TestScopeHidesOtherBranches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 1)
	res := f.reserve(t, room, nil, "")

	elsewhere := Scope{BranchID: ptr(uuid.New())}
	_, err := f.svc.Get(ctx, res.ID, elsewhere)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReservationNotFound))

	_, err = f.svc.Release(ctx, ReleaseInput{ReservationID: res.ID, Reason: "x", Scope: elsewhere})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReservationNotFound))

	got, err := f.svc.Get(ctx, res.ID, Scope{BranchID: &f.branch.ID})
	require.NoError(t, err)
	require.Equal(t, res.ID, got.ID)
}

func TestRecalculateAgreesWithIncrementalProjection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 3, "B1", "B2", "B3")

	a := f.reserve(t, room, &room.Beds[0].ID, enums.PaymentStatusVerified)
	b := f.reserve(t, room, &room.Beds[1].ID, "")
	c := f.reserve(t, room, &room.Beds[2].ID, enums.PaymentStatusVerified)

	steps := []func() error{
		func() error {
			_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: a.ID, Status: enums.ReservationStatusConfirmed})
			return err
		},
		func() error {
			_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: b.ID, Status: enums.ReservationStatusCheckedIn})
			return err
		},
		func() error {
			_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: c.ID, Status: enums.ReservationStatusConfirmed})
			return err
		},
		func() error {
			_, err := f.svc.MarkAtRisk(ctx, c.ID, c.RiskDeadline)
			return err
		},
		func() error {
			_, err := f.svc.UpdateStatus(ctx, StatusInput{ReservationID: a.ID, Status: enums.ReservationStatusCancelled})
			return err
		},
		func() error {
			_, err := f.svc.Archive(ctx, ArchiveInput{ReservationID: a.ID})
			return err
		},
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		f.requireConsistent(t, room.ID)
	}

	recalc, err := occupancy.NewRecalculator(occupancy.RecalculatorParams{
		DB:     f.client,
		Locker: f.locker,
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	result, err := recalc.Recalculate(ctx, room.ID)
	require.NoError(t, err)
	require.False(t, result.Drift())
	require.Equal(t, 2, result.OccupancyAfter)
	require.Empty(t, result.UnassignedHolders)
}

type stubCodes struct {
	codes []string
	calls int
}

func (s *stubCodes) Next(context.Context, time.Time) (string, error) {
	code := s.codes[s.calls%len(s.codes)]
	s.calls++
	return code, nil
}

func TestCreateRetriesCodeCollision(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 2)
	codes := &stubCodes{codes: []string{"RSV-261016-AAAAAA", "RSV-261016-AAAAAA", "RSV-261016-BBBBBB"}}

	reconciler, err := occupancy.NewReconciler(logger.Nop(), nil)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		DB:         f.client,
		Repo:       f.repo,
		Reconciler: reconciler,
		Locker:     f.locker,
		Audit:      f.audit,
		Promoter:   f.users,
		Codes:      codes,
		Logger:     logger.Nop(),
		Clock:      func() time.Time { return f.now },
	})
	require.NoError(t, err)

	in := CreateInput{GuestID: f.guest.ID, RoomID: room.ID, MoveInDate: f.now}
	first, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "RSV-261016-AAAAAA", first.Reservation.Code)

	second, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "RSV-261016-BBBBBB", second.Reservation.Code)
	require.Equal(t, 3, codes.calls)
}
