// Package shutdown coordinates the host's irrecoverable shutdown.
//
// The transition is one-way: once a component invokes a shutdown (e.g. the
// serial link after exhausting its reconnect attempts) every registered
// handler runs once and the host stays down until the process restarts.
package shutdown

import (
	"sync"
	"time"

	"ino-host/pkg/log"
	"ino-host/pkg/reactor"
)

// State represents the host's operational state.
type State string

const (
	// StateStartup indicates the host is initializing.
	StateStartup State = "startup"
	// StateReady indicates the host is ready for operation.
	StateReady State = "ready"
	// StateShutdown indicates the host has been shut down.
	StateShutdown State = "shutdown"
)

// Handler is called when a shutdown is triggered.
type Handler func()

type handlerEntry struct {
	name    string
	handler Handler
}

// Coordinator manages the host's shutdown lifecycle. Handlers run in
// registration order; a panicking handler is logged and skipped so the
// remaining handlers still run.
type Coordinator struct {
	mu sync.RWMutex

	state        State
	shutdownMsg  string
	shutdownTime time.Time

	onShutdown []handlerEntry

	reactor *reactor.Reactor
	logger  *log.Logger
}

// NewCoordinator creates a coordinator in startup state.
func NewCoordinator(r *reactor.Reactor) *Coordinator {
	return &Coordinator{
		state:   StateStartup,
		reactor: r,
		logger:  log.GetLogger("shutdown"),
	}
}

// SetReady transitions from startup to ready.
func (c *Coordinator) SetReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStartup {
		c.state = StateReady
	}
}

// RegisterHandler registers a handler to run during shutdown. The name is
// used for logging only.
func (c *Coordinator) RegisterHandler(name string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onShutdown = append(c.onShutdown, handlerEntry{name: name, handler: handler})
}

// Invoke triggers the shutdown sequence with a descriptive reason.
// Safe to call multiple times; only the first call has any effect.
func (c *Coordinator) Invoke(msg string) {
	c.mu.Lock()
	if c.state == StateShutdown {
		c.mu.Unlock()
		return
	}
	c.state = StateShutdown
	c.shutdownMsg = msg
	c.shutdownTime = time.Now()
	handlers := make([]handlerEntry, len(c.onShutdown))
	copy(handlers, c.onShutdown)
	c.mu.Unlock()

	c.logger.Error("transition to shutdown state: %s", msg)

	for _, entry := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("panic in shutdown handler %s: %v", entry.name, r)
				}
			}()
			entry.handler()
		}()
	}
}

// InvokeAsync triggers a shutdown from a timer callback or another
// goroutine, deferring the handler sequence to the reactor's dispatch
// goroutine.
func (c *Coordinator) InvokeAsync(msg string) {
	if c.reactor == nil {
		c.Invoke(msg)
		return
	}
	c.reactor.RegisterAsyncCallback(func(eventtime float64) {
		c.Invoke(msg)
	})
}

// IsShutdown returns true once a shutdown has been invoked.
func (c *Coordinator) IsShutdown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateShutdown
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Message returns the shutdown reason, or "" if not shut down.
func (c *Coordinator) Message() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shutdownMsg
}

// GetStatus returns the current status for reporting.
func (c *Coordinator) GetStatus() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := map[string]interface{}{
		"state": string(c.state),
	}
	if c.state == StateShutdown {
		status["message"] = c.shutdownMsg
		status["shutdown_time"] = c.shutdownTime.Unix()
	}
	return status
}
