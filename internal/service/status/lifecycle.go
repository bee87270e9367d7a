package status

import (
	"errors"
	"fmt"
	"sync"

	"vibe-transcriber-service/internal/models"
)

var (
	// ErrAlreadyTerminal is returned when a finished job is finished again.
	ErrAlreadyTerminal = errors.New("job already reached a terminal status")
	// ErrInvalidTransition is returned for a transition the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Lifecycle is the in-process state of one async job. Unlike the stored
// status it is authoritative: a job finishes exactly once.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	pending → processing → completed
//	              │
//	              └──────→ failed
type Lifecycle struct {
	mu    sync.Mutex
	key   models.RecordKey
	state models.ProcessingStatus
}

// NewLifecycle creates a lifecycle in the pending state.
func NewLifecycle(key models.RecordKey) *Lifecycle {
	return &Lifecycle{key: key, state: models.StatusPending}
}

// Key returns the record key of the job.
func (l *Lifecycle) Key() models.RecordKey {
	return l.key
}

// State returns the current state.
func (l *Lifecycle) State() models.ProcessingStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start moves the job to processing.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if !l.state.CanTransitionTo(models.StatusProcessing) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, l.state, models.StatusProcessing)
	}
	l.state = models.StatusProcessing
	return nil
}

// Finish moves the job to a terminal state. Only the first call succeeds.
func (l *Lifecycle) Finish(final models.ProcessingStatus) error {
	if !final.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, final)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return ErrAlreadyTerminal
	}
	l.state = final
	return nil
}
