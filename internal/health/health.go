// Package health aggregates liveness information from the guard's
// subsystems. The server registers one checker per subsystem and the
// /health endpoint reports the combined result.
package health

import (
	"context"
	"sync"
)

// Status is the result of probing one subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// OK builds a healthy status with an optional detail string.
func OK(name, detail string) Status {
	return Status{Name: name, Healthy: true, Detail: detail}
}

// Failing builds an unhealthy status carrying the failure reason.
func Failing(name, reason string) Status {
	return Status{Name: name, Healthy: false, Detail: reason}
}

// Checker probes a single subsystem. Checkers must be safe to call
// concurrently and should return quickly.
type Checker func(ctx context.Context) Status

// Registry holds named checkers in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	name string
	fn   Checker
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker under the given name. Registration order is
// the order statuses come back from CheckAll.
func (r *Registry) Register(name string, fn Checker) {
	r.mu.Lock()
	r.entries = append(r.entries, entry{name: name, fn: fn})
	r.mu.Unlock()
}

// CheckAll probes every registered subsystem and reports whether all of
// them are healthy. If the context expires partway through, the
// remaining subsystems are reported as failing without being probed.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	entries := append([]entry(nil), r.entries...)
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(entries))

	for _, e := range entries {
		var st Status
		if err := ctx.Err(); err != nil {
			st = Failing(e.name, err.Error())
		} else {
			st = e.fn(ctx)
		}
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}

	return healthy, statuses
}
