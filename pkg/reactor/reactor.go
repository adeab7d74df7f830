// Package reactor provides the cooperative timer scheduler that drives the
// host's periodic tasks (sample, read, write). Each timer callback runs to
// completion and returns its own next wake time; callbacks never block on
// I/O, so a single dispatch goroutine services every timer.
package reactor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Timer wake time sentinels.
const (
	NOW   = 0.0
	NEVER = 9999999999999999.0
)

// TimerCallback is called when a timer fires. It receives the event time
// and returns the next wake time; returning NEVER parks the timer.
type TimerCallback func(eventtime float64) float64

// Timer represents a registered timer.
type Timer struct {
	id        uint64
	callback  TimerCallback
	waketime  float64
	isRunning bool
	mu        sync.Mutex
}

// Waketime returns the timer's current wake time.
func (t *Timer) Waketime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waketime
}

// Reactor manages timers and asynchronous callbacks.
type Reactor struct {
	mu          sync.RWMutex
	timers      []*Timer
	nextTimerID uint64
	nextWake    float64

	asyncQueue chan func()

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	wg      sync.WaitGroup

	startTime time.Time
}

// New creates a new Reactor.
func New() *Reactor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		nextWake:   NEVER,
		asyncQueue: make(chan func(), 256),
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
	}
}

// Monotonic returns the current monotonic time in seconds since reactor
// creation. All timer wake times are expressed on this clock.
func (r *Reactor) Monotonic() float64 {
	return time.Since(r.startTime).Seconds()
}

// RegisterTimer registers a timer that first fires at waketime.
func (r *Reactor) RegisterTimer(callback TimerCallback, waketime float64) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := &Timer{
		id:       atomic.AddUint64(&r.nextTimerID, 1),
		callback: callback,
		waketime: waketime,
	}
	r.timers = append(r.timers, timer)
	if waketime < r.nextWake {
		r.nextWake = waketime
	}
	return timer
}

// UnregisterTimer removes a timer. Unregistering an already removed timer
// is a no-op, so shutdown paths may call it unconditionally.
func (r *Reactor) UnregisterTimer(timer *Timer) {
	if timer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	timer.mu.Lock()
	timer.waketime = NEVER
	timer.mu.Unlock()

	for i, t := range r.timers {
		if t.id == timer.id {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			break
		}
	}
}

// UpdateTimer moves a timer's next wake time. Ignored while the timer's
// callback is running; the callback's return value wins in that case.
func (r *Reactor) UpdateTimer(timer *Timer, waketime float64) {
	timer.mu.Lock()
	if timer.isRunning {
		timer.mu.Unlock()
		return
	}
	timer.waketime = waketime
	timer.mu.Unlock()

	r.mu.Lock()
	if waketime < r.nextWake {
		r.nextWake = waketime
	}
	r.mu.Unlock()
}

// RegisterAsyncCallback schedules a function to run on the dispatch
// goroutine. Safe to call from any goroutine; used by external command
// paths to hand work to the reactor.
func (r *Reactor) RegisterAsyncCallback(callback func(eventtime float64)) {
	select {
	case r.asyncQueue <- func() { callback(r.Monotonic()) }:
	default:
		// Queue full; run inline rather than lose the callback.
		callback(r.Monotonic())
	}
}

// Pause sleeps until the given wake time or reactor shutdown.
func (r *Reactor) Pause(waketime float64) float64 {
	now := r.Monotonic()
	if waketime <= now {
		return now
	}
	if waketime >= NEVER {
		<-r.ctx.Done()
		return r.Monotonic()
	}
	select {
	case <-time.After(time.Duration((waketime - now) * float64(time.Second))):
	case <-r.ctx.Done():
	}
	return r.Monotonic()
}

// Run starts the dispatch loop.
func (r *Reactor) Run() {
	if r.running.Swap(true) {
		return
	}
	r.wg.Add(1)
	go r.dispatchLoop()
}

// End signals the reactor to stop.
func (r *Reactor) End() {
	r.running.Store(false)
	r.cancel()
}

// Wait blocks until the dispatch loop has exited.
func (r *Reactor) Wait() {
	r.wg.Wait()
}

func (r *Reactor) dispatchLoop() {
	defer r.wg.Done()

	for r.running.Load() {
		r.drainAsyncCallbacks()

		timeout := r.checkTimers(r.Monotonic())
		if timeout <= 0 {
			continue
		}

		delay := time.Duration(timeout * float64(time.Second))
		if delay > time.Second {
			delay = time.Second
		}
		select {
		case <-time.After(delay):
		case fn := <-r.asyncQueue:
			fn()
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Reactor) drainAsyncCallbacks() {
	for {
		select {
		case fn := <-r.asyncQueue:
			fn()
		default:
			return
		}
	}
}

// checkTimers fires all due timers and returns the delay until the next
// one is due.
func (r *Reactor) checkTimers(eventtime float64) float64 {
	r.mu.Lock()
	if eventtime < r.nextWake {
		delay := r.nextWake - eventtime
		r.mu.Unlock()
		return delay
	}
	timers := make([]*Timer, len(r.timers))
	copy(timers, r.timers)
	r.nextWake = NEVER
	r.mu.Unlock()

	for _, timer := range timers {
		timer.mu.Lock()
		if eventtime >= timer.waketime {
			timer.waketime = NEVER
			timer.isRunning = true
			timer.mu.Unlock()

			next := timer.callback(eventtime)

			timer.mu.Lock()
			timer.isRunning = false
			if next < timer.waketime {
				timer.waketime = next
			}
		}
		waketime := timer.waketime
		timer.mu.Unlock()

		r.mu.Lock()
		if waketime < r.nextWake {
			r.nextWake = waketime
		}
		r.mu.Unlock()
	}

	r.mu.RLock()
	delay := r.nextWake - eventtime
	r.mu.RUnlock()
	if delay < 0 {
		delay = 0
	}
	return delay
}
