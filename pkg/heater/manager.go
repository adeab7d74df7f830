package heater

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"ino-host/pkg/errors"
)

// Manager tracks every registered heater and resolves lookups by name or
// extruder index.
type Manager struct {
	mu             sync.Mutex
	heaters        map[string]*Heater
	order          []string
	activeExtruder string
}

// NewManager creates an empty heater registry.
func NewManager() *Manager {
	return &Manager{
		heaters:        make(map[string]*Heater),
		activeExtruder: "extruder",
	}
}

// Register adds a heater under its configured name.
func (m *Manager) Register(h *Heater) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.heaters[h.Name()]; ok {
		return fmt.Errorf("heater %s already registered", h.Name())
	}
	m.heaters[h.Name()] = h
	m.order = append(m.order, h.Name())
	return nil
}

// Lookup returns the heater with the given name.
func (m *Manager) Lookup(name string) (*Heater, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.heaters[name]
	if !ok {
		return nil, errors.UnknownHeaterError(name)
	}
	return h, nil
}

// ExtruderName maps an extruder index to its conventional heater name:
// index 0 is "extruder", index N is "extruderN".
func ExtruderName(index int) string {
	if index == 0 {
		return "extruder"
	}
	return fmt.Sprintf("extruder%d", index)
}

// LookupExtruder resolves an optional extruder index. A nil index selects
// the active extruder's heater.
func (m *Manager) LookupExtruder(index *int) (*Heater, error) {
	m.mu.Lock()
	name := m.activeExtruder
	m.mu.Unlock()
	if index != nil {
		name = ExtruderName(*index)
	}
	return m.Lookup(name)
}

// SetActiveExtruder records which extruder heater index-less commands
// resolve to.
func (m *Manager) SetActiveExtruder(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.heaters[name]; !ok {
		return errors.UnknownHeaterError(name)
	}
	m.activeExtruder = name
	return nil
}

// Names returns the registered heater names in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// TurnOffAll sets every heater's target to zero. Per-heater errors are
// ignored: a zero target is always in range.
func (m *Manager) TurnOffAll() {
	for _, name := range m.Names() {
		if h, err := m.Lookup(name); err == nil {
			h.SetTemp(0) //nolint:errcheck
		}
	}
}

// M105Report formats the aggregate temperature report in the style of the
// M105 response, one "name:temp /target" clause per heater.
func (m *Manager) M105Report(eventtime float64) string {
	names := m.Names()
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		h, err := m.Lookup(name)
		if err != nil {
			continue
		}
		smoothed, target := h.GetTemp(eventtime)
		out = append(out, fmt.Sprintf("%s:%.1f /%.1f", name, smoothed, target))
	}
	if len(out) == 0 {
		return "T:0"
	}
	return strings.Join(out, " ")
}

// Stats collects per-heater stats lines, returning whether any heater is
// active.
func (m *Manager) Stats(eventtime float64) (bool, string) {
	active := false
	parts := make([]string, 0, len(m.order))
	for _, name := range m.Names() {
		h, err := m.Lookup(name)
		if err != nil {
			continue
		}
		isActive, line := h.Stats(eventtime)
		active = active || isActive
		parts = append(parts, line)
	}
	return active, strings.Join(parts, " ")
}
