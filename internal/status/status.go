// Package status tracks process-wide proxy activity and backend registration
// state for the /status endpoint.
package status

import (
	"sync"
	"time"
)

// Instance tags describe how a named backend was wired up.
const (
	InstanceConfigured = "configured"
	InstanceStatic     = "static"
	InstanceDynamic    = "dynamic"
)

// Snapshot is the JSON-serializable view of GlobalStatus returned by the
// status endpoint.
type Snapshot struct {
	APILastActivity string            `json:"api_last_activity"`
	ServerInstances map[string]string `json:"server_instances"`
}

// GlobalStatus is process-wide, mutex-protected proxy activity state. Every
// request path that touches a session must call Touch before doing any
// session I/O.
type GlobalStatus struct {
	mu              sync.RWMutex
	apiLastActivity time.Time
	serverInstances map[string]string
}

// New creates a GlobalStatus with activity stamped at creation time.
func New() *GlobalStatus {
	return &GlobalStatus{
		apiLastActivity: time.Now().UTC(),
		serverInstances: make(map[string]string),
	}
}

// Touch records that API activity just occurred.
func (s *GlobalStatus) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiLastActivity = time.Now().UTC()
}

// SetInstance tags a named backend with how it was wired (configured,
// static, or dynamic).
func (s *GlobalStatus) SetInstance(name, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverInstances[name] = tag
}

// Snapshot returns a point-in-time copy safe for JSON encoding.
func (s *GlobalStatus) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instances := make(map[string]string, len(s.serverInstances))
	for k, v := range s.serverInstances {
		instances[k] = v
	}
	return Snapshot{
		APILastActivity: s.apiLastActivity.Format(time.RFC3339Nano),
		ServerInstances: instances,
	}
}
