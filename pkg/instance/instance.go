package instance

import "github.com/angelmondragon/dormstay-backend/pkg/env"

const (
	envWorkerID = "DORMSTAY_WORKER_ID"
	envHostname = "HOSTNAME"
	defaultID   = "worker-0"
)

// GetID returns the process instance identifier. The explicit worker id wins,
// then the container hostname.
func GetID() string {
	return env.Get(envWorkerID, env.Get(envHostname, defaultID))
}
