package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"writline/internal/apperr"
)

// ErrSessionClosed is returned once a session was cancelled or finished. A
// response that arrives after that is discarded and reported with it.
var ErrSessionClosed = errors.New("workflow session closed")

type State string

const (
	StateNew          State = "NEW"
	StateStep1        State = "STEP1"
	StateStep1Confirm State = "STEP1_FINAL_CONFIRM"
	StateStep2Draft   State = "STEP2_DRAFT"
	StateStep2Confirm State = "STEP2_FINAL_CONFIRM"
	StateSubmitted    State = "SUBMITTED"
	StateLoading      State = "LOADING"
	StateReady        State = "READY"
	StateTypeChanged  State = "TYPE_CHANGED"
	StateConfirm      State = "CONFIRM"
	StateSaving       State = "SAVING"
	StateDone         State = "DONE"
	StateCancelled    State = "CANCELLED"
)

// session holds what both workflows share: identity, the lock and the
// in-flight and closed flags.
type session struct {
	id       string
	mu       sync.Mutex
	state    State
	inFlight bool
	closed   bool
}

func newSession(initial State) session {
	return session{id: uuid.NewString(), state: initial}
}

// usable reports whether op may run now. The caller holds mu.
func (s *session) usable(op string, allowed ...State) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.inFlight {
		return apperr.State("request in flight")
	}
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return apperr.State(fmt.Sprintf("%s is not allowed in state %s", op, s.state))
}

// dispatch runs call with mu released and the in-flight flag set. The caller
// holds mu on entry and holds it again on return. The call runs on a context
// that is not cancelled with ctx so closing the form never aborts a write.
func (s *session) dispatch(ctx context.Context, call func(context.Context) error) error {
	s.inFlight = true
	s.mu.Unlock()
	err := call(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.inFlight = false
	if s.closed {
		return ErrSessionClosed
	}
	return err
}

// cancel closes the session. It is allowed while a request is in flight.
func (s *session) cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.state = StateCancelled
	return true
}

func (s *session) ID() string { return s.id }
