// Package registry maintains the set of monitored agents.
//
// Targets are keyed by unique name; duplicate names and duplicate addresses
// are rejected. The registry can persist itself to a JSON file using a
// tempfile-and-rename write, so a crash never leaves a torn device list.
// It implements the collector's TargetSource, which means additions and
// removals made through the dashboard take effect on the next poll tick.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkeller/hostwatch/internal/collector"
)

var (
	// ErrDuplicateName is returned when a target's name is already taken.
	ErrDuplicateName = errors.New("duplicate agent name")

	// ErrDuplicateAddress is returned when a target's address is already
	// monitored under another name.
	ErrDuplicateAddress = errors.New("duplicate agent address")

	// ErrNotFound is returned when no target has the given name.
	ErrNotFound = errors.New("agent not found")
)

// Entry is a registered target plus bookkeeping.
type Entry struct {
	Target  collector.Target `json:"-"`
	AddedAt time.Time        `json:"-"`
}

// persistedEntry is the JSON shape written to the registry file.
// Durations are stored as strings ("10s") for hand-editability.
type persistedEntry struct {
	Name     string            `json:"name"`
	Address  string            `json:"address"`
	Labels   map[string]string `json:"labels,omitempty"`
	Timeout  string            `json:"timeout,omitempty"`
	Interval string            `json:"interval,omitempty"`
	Enabled  bool              `json:"enabled"`
	AddedAt  time.Time         `json:"added_at"`
}

// Registry is a thread-safe, optionally file-backed set of targets.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry // insertion order
	path    string  // empty means memory-only
}

// New creates a registry. If path is non-empty the registry persists to
// that file and loads any existing contents.
func New(path string) (*Registry, error) {
	r := &Registry{path: path}
	if path != "" {
		if err := r.load(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a new target. Fails with [ErrDuplicateName] or
// [ErrDuplicateAddress] if the name or address is already registered.
func (r *Registry) Add(t collector.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.Target.Name == t.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateName, t.Name)
		}
		if e.Target.Address == t.Address {
			return fmt.Errorf("%w: %q (registered as %q)", ErrDuplicateAddress, t.Address, e.Target.Name)
		}
	}

	r.entries = append(r.entries, Entry{Target: t, AddedAt: time.Now()})
	return r.persistLocked()
}

// Remove deletes a target by name. Returns [ErrNotFound] for unknown names.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.Target.Name == name {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return r.persistLocked()
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// SetEnabled toggles polling for a target without removing it.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].Target.Name == name {
			r.entries[i].Target.Enabled = enabled
			return r.persistLocked()
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Get returns the target with the given name.
func (r *Registry) Get(name string) (collector.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Target.Name == name {
			return e.Target, nil
		}
	}
	return collector.Target{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// List returns all entries in insertion order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Targets implements collector.TargetSource.
func (r *Registry) Targets() []collector.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]collector.Target, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Target
	}
	return out
}

// load reads the registry file if it exists. A missing file is an empty
// registry, not an error.
func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read registry file: %w", err)
	}

	var persisted []persistedEntry
	if err := json.Unmarshal(data, &persisted); err != nil {
		return fmt.Errorf("parse registry file %s: %w", r.path, err)
	}

	entries := make([]Entry, 0, len(persisted))
	for _, p := range persisted {
		t := collector.Target{
			Name:    p.Name,
			Address: p.Address,
			Labels:  p.Labels,
			Enabled: p.Enabled,
		}
		if p.Timeout != "" {
			d, err := time.ParseDuration(p.Timeout)
			if err != nil {
				return fmt.Errorf("registry entry %q: invalid timeout %q: %w", p.Name, p.Timeout, err)
			}
			t.Timeout = d
		}
		if p.Interval != "" {
			d, err := time.ParseDuration(p.Interval)
			if err != nil {
				return fmt.Errorf("registry entry %q: invalid interval %q: %w", p.Name, p.Interval, err)
			}
			t.Interval = d
		}
		entries = append(entries, Entry{Target: t, AddedAt: p.AddedAt})
	}
	r.entries = entries
	return nil
}

// persistLocked writes the registry atomically. Callers must hold mu.
// Memory-only registries skip persistence.
func (r *Registry) persistLocked() error {
	if r.path == "" {
		return nil
	}

	persisted := make([]persistedEntry, len(r.entries))
	for i, e := range r.entries {
		p := persistedEntry{
			Name:    e.Target.Name,
			Address: e.Target.Address,
			Labels:  e.Target.Labels,
			Enabled: e.Target.Enabled,
			AddedAt: e.AddedAt,
		}
		if e.Target.Timeout > 0 {
			p.Timeout = e.Target.Timeout.String()
		}
		if e.Target.Interval > 0 {
			p.Interval = e.Target.Interval.String()
		}
		persisted[i] = p
	}

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry directory: %w", err)
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry temp file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}
