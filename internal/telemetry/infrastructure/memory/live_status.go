package memory

import (
	"sync"

	telemetry "pasture-cloud/internal/telemetry/domain"
)

// LiveStatusStore is an in-memory last-write-wins store of the latest status
// per sensor. Contents are lost on restart and repopulate from traffic.
type LiveStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]telemetry.LiveStatus
}

// NewLiveStatusStore constructs an empty store.
func NewLiveStatusStore() *LiveStatusStore {
	return &LiveStatusStore{statuses: make(map[string]telemetry.LiveStatus)}
}

// Set stores the status, replacing any previous entry for the sensor.
func (s *LiveStatusStore) Set(status telemetry.LiveStatus) {
	if status.SensorID == "" {
		return
	}
	s.mu.Lock()
	s.statuses[status.SensorID] = status
	s.mu.Unlock()
}

// Get returns the latest status for a sensor.
func (s *LiveStatusStore) Get(sensorID string) (telemetry.LiveStatus, bool) {
	s.mu.RLock()
	status, ok := s.statuses[sensorID]
	s.mu.RUnlock()
	return status, ok
}

// All returns a snapshot of every tracked sensor.
func (s *LiveStatusStore) All() []telemetry.LiveStatus {
	s.mu.RLock()
	out := make([]telemetry.LiveStatus, 0, len(s.statuses))
	for _, status := range s.statuses {
		out = append(out, status)
	}
	s.mu.RUnlock()
	return out
}
