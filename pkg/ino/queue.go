package ino

import "sync"

// CommandQueue is a thread-safe FIFO of outbound command strings. Producers
// (the heater, the router, the sample task) push from any goroutine; the
// write task pops from the reactor goroutine.
type CommandQueue struct {
	mu    sync.Mutex
	items []string
}

// NewCommandQueue creates an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Push appends a command to the tail.
func (q *CommandQueue) Push(cmd string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, cmd)
}

// TryPop removes and returns the head, or false if the queue is empty.
func (q *CommandQueue) TryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	cmd := q.items[0]
	q.items = q.items[1:]
	return cmd, true
}

// Clear drops all pending commands.
func (q *CommandQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Len returns the number of pending commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
