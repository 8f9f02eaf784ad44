// Package cache holds the latest status per agent and fans updates out to
// subscribers, backing the dashboard's JSON API and SSE stream. It also
// keeps a bounded ring of recent alerts.
package cache

import (
	"sync"
	"time"

	"github.com/pkeller/hostwatch/internal/threshold"
	"github.com/pkeller/hostwatch/internal/wire"
)

// AgentStatus is the latest known state of one agent, shaped for JSON
// serialization in the REST API and SSE stream.
type AgentStatus struct {
	// Name is the agent's unique name.
	Name string `json:"name"`

	// Address is the agent's "host:port".
	Address string `json:"address"`

	// Status is "up" or "down".
	Status string `json:"status"`

	// Labels contains key-value metadata for grouping and filtering.
	Labels map[string]string `json:"labels,omitempty"`

	// LatencyMs is the RPC round-trip time in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// CheckedAt is the timestamp of the last poll.
	CheckedAt time.Time `json:"checked_at"`

	// Error contains the failure message if the last poll failed.
	Error *string `json:"error"`

	// ConsecutiveFailures counts failed polls since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Report is the last fetched metrics snapshot; nil while the agent
	// has never been reached.
	Report *wire.Report `json:"report,omitempty"`
}

const (
	subscriberBuffer = 100
	alertRingSize    = 512
)

// StatusCache stores the latest [AgentStatus] per agent with a
// publish-subscribe mechanism for live updates.
//
// Subscribers receive updates on buffered channels. Updates are sent
// non-blocking: a subscriber whose buffer is full misses that update rather
// than stalling the collector.
type StatusCache struct {
	mu       sync.RWMutex
	statuses map[string]AgentStatus

	subMu       sync.RWMutex
	subscribers map[chan AgentStatus]struct{}

	alertMu sync.RWMutex
	alerts  []threshold.Alert // ring, newest last
}

// NewStatusCache creates an empty [StatusCache].
func NewStatusCache() *StatusCache {
	return &StatusCache{
		statuses:    make(map[string]AgentStatus),
		subscribers: make(map[chan AgentStatus]struct{}),
	}
}

// Update stores a status keyed by agent name and notifies all subscribers.
func (c *StatusCache) Update(status AgentStatus) {
	c.mu.Lock()
	c.statuses[status.Name] = status
	c.mu.Unlock()

	c.notifySubscribers(status)
}

// Forget drops the cached status for an agent, e.g. after it is removed
// from the registry.
func (c *StatusCache) Forget(name string) {
	c.mu.Lock()
	delete(c.statuses, name)
	c.mu.Unlock()
}

// GetAll returns a snapshot of all cached statuses. Order is not guaranteed.
func (c *StatusCache) GetAll() []AgentStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make([]AgentStatus, 0, len(c.statuses))
	for _, s := range c.statuses {
		results = append(results, s)
	}
	return results
}

// Get returns the cached status for one agent.
func (c *StatusCache) Get(name string) (AgentStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.statuses[name]
	return s, ok
}

// Subscribe returns a buffered channel receiving status updates. Callers
// must call [StatusCache.Unsubscribe] when done.
func (c *StatusCache) Subscribe() <-chan AgentStatus {
	ch := make(chan AgentStatus, subscriberBuffer)

	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (c *StatusCache) Unsubscribe(ch <-chan AgentStatus) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for subCh := range c.subscribers {
		if subCh == ch {
			delete(c.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (c *StatusCache) notifySubscribers(status AgentStatus) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for ch := range c.subscribers {
		select {
		case ch <- status:
		default:
			// subscriber is slow, drop the update
		}
	}
}

// AddAlerts appends alerts to the ring, evicting the oldest past capacity.
func (c *StatusCache) AddAlerts(alerts []threshold.Alert) {
	if len(alerts) == 0 {
		return
	}

	c.alertMu.Lock()
	defer c.alertMu.Unlock()

	c.alerts = append(c.alerts, alerts...)
	if over := len(c.alerts) - alertRingSize; over > 0 {
		c.alerts = append([]threshold.Alert(nil), c.alerts[over:]...)
	}
}

// RecentAlerts returns up to limit alerts, newest first. limit <= 0 returns
// all retained alerts.
func (c *StatusCache) RecentAlerts(limit int) []threshold.Alert {
	c.alertMu.RLock()
	defer c.alertMu.RUnlock()

	n := len(c.alerts)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]threshold.Alert, 0, n)
	for i := len(c.alerts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, c.alerts[i])
	}
	return out
}
