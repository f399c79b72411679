package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTransferStalled is the cancellation cause when no progress arrived within the stall window.
var ErrTransferStalled = errors.New("transfer stalled")

// State is the lifecycle of a direct-upload batch.
type State int

const (
	StateTransferring State = iota
	StateStalled
	StateAborted
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateTransferring:
		return "transferring"
	case StateStalled:
		return "stalled"
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Watchdog tracks the last progress event of a batch. Once it leaves
// StateTransferring it never changes state again.
type Watchdog struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	state  State
	now    func() time.Time
}

func NewWatchdog(window time.Duration) *Watchdog {
	return newWatchdog(window, time.Now)
}

func newWatchdog(window time.Duration, now func() time.Time) *Watchdog {
	return &Watchdog{window: window, last: now(), state: StateTransferring, now: now}
}

// Progress records activity and pushes the deadline out by one window.
func (w *Watchdog) Progress() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateTransferring {
		w.last = w.now()
	}
}

// Check moves to StateStalled when the window elapsed without progress, and returns the state.
func (w *Watchdog) Check() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateTransferring && w.now().Sub(w.last) >= w.window {
		w.state = StateStalled
	}
	return w.state
}

// Abort marks a transfer error. It reports false if the batch had already ended.
func (w *Watchdog) Abort() bool {
	return w.finish(StateAborted)
}

// Complete marks a successful batch. It reports false if the batch had already ended.
func (w *Watchdog) Complete() bool {
	return w.finish(StateCompleted)
}

func (w *Watchdog) finish(s State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateTransferring {
		return false
	}
	w.state = s
	return true
}

func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Deadline is when the batch stalls unless more progress arrives.
func (w *Watchdog) Deadline() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.Add(w.window)
}

// Watch re-arms a timer on the current deadline until the batch ends, and cancels
// it with ErrTransferStalled if the deadline passes without progress.
func (w *Watchdog) Watch(ctx context.Context, cancel context.CancelCauseFunc) {
	timer := time.NewTimer(w.Deadline().Sub(w.now()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			switch w.Check() {
			case StateStalled:
				cancel(ErrTransferStalled)
				return
			case StateTransferring:
				timer.Reset(w.Deadline().Sub(w.now()))
			default:
				return
			}
		}
	}
}
