package enums

import (
	"fmt"
	"strings"
)

// RoomLockBackend selects how per-room mutations are serialized.
type RoomLockBackend string

const (
	RoomLockBackendLocal RoomLockBackend = "local"
	RoomLockBackendRedis RoomLockBackend = "redis"
)

// ParseRoomLockBackend converts raw config into a RoomLockBackend, defaulting to local.
func ParseRoomLockBackend(value string) (RoomLockBackend, error) {
	switch RoomLockBackend(strings.ToLower(strings.TrimSpace(value))) {
	case "", RoomLockBackendLocal:
		return RoomLockBackendLocal, nil
	case RoomLockBackendRedis:
		return RoomLockBackendRedis, nil
	}
	return "", fmt.Errorf("invalid room lock backend %q", value)
}
