package occupancy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dormstay-backend/pkg/config"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/angelmondragon/dormstay-backend/pkg/redis"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockWait  = 5 * time.Second
	lockPollInterval = 25 * time.Millisecond
)

// RoomLocker serializes mutations against a single room. The returned unlock
// func must be called exactly once.
type RoomLocker interface {
	Lock(ctx context.Context, roomID uuid.UUID) (unlock func(), err error)
}

// NewRoomLocker builds the locker selected by backend. The redis backend
// requires client; the local backend ignores it.
func NewRoomLocker(backend string, client *redis.Client, logg *logger.Logger, cfg config.ReservationConfig) (RoomLocker, error) {
	kind, err := enums.ParseRoomLockBackend(backend)
	if err != nil {
		return nil, err
	}
	if kind == enums.RoomLockBackendLocal {
		return NewLocalLocker(cfg.RoomLockWait), nil
	}
	if client == nil {
		return nil, errors.New("redis room lock backend requires DORMSTAY_REDIS_URL or DORMSTAY_REDIS_ADDR")
	}
	return NewRedisLocker(client, logg, cfg.RoomLockTTL, cfg.RoomLockWait)
}

// errRoomBusy is returned when the lock could not be taken within the wait window.
func errRoomBusy(roomID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeReconciliationConflict, "room is being updated concurrently").
		WithDetails(map[string]any{"room_id": roomID.String()})
}

// LocalLocker is an in-process keyed lock. It only serializes callers within
// one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*localSlot
	wait  time.Duration
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker builds an in-process locker waiting at most wait for a room.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &LocalLocker{slots: map[uuid.UUID]*localSlot{}, wait: wait}
}

func (l *LocalLocker) Lock(ctx context.Context, roomID uuid.UUID) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[roomID]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[roomID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(roomID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(roomID, slot)
		return nil, ctx.Err()
	case <-timer.C:
		l.release(roomID, slot)
		return nil, errRoomBusy(roomID)
	}
}

func (l *LocalLocker) release(roomID uuid.UUID, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, roomID)
	}
}

// lockStore defines the redis operations used by RedisLocker.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, token string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker is a distributed per-room lock using SETNX with a TTL and an
// owner token checked on release.
type RedisLocker struct {
	store lockStore
	logg  *logger.Logger
	ttl   time.Duration
	wait  time.Duration
}

// NewRedisLocker constructs a Redis-backed room locker.
func NewRedisLocker(store lockStore, logg *logger.Logger, ttl, wait time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for room lock")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &RedisLocker{store: store, logg: logg, ttl: ttl, wait: wait}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, roomID uuid.UUID) (func(), error) {
	key := l.store.LockKey("room", roomID.String())
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("setnx: %w", err), "acquire room lock")
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errRoomBusy(roomID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even when the request context is already done.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if _, err := l.store.CompareAndDelete(releaseCtx, key, token); err != nil {
				l.logg.Error(l.logg.WithRoomID(ctx, roomID.String()), "failed to release room lock", err)
			}
		})
	}, nil
}
