package scraper

import (
	"context"
	"sync"

	apperrors "bankfeed/internal/errors"
)

// State is a session's position in the login lifecycle.
type State string

const (
	StateUnauthenticated       State = "unauthenticated"
	StateSubmittingCredentials State = "submitting-credentials"
	StatePendingChallenge      State = "pending-challenge"
	StateAuthenticated         State = "authenticated"
	StateFailed                State = "failed"
	StateExpired               State = "expired"
)

// Challenge is an MFA prompt the portal raised during login. The scraper
// blocks until Resolve is called with the operator's response.
type Challenge struct {
	Bank   string
	Prompt string

	response chan string
	once     sync.Once
}

// Resolve supplies the operator's answer (an OTP code, usually). Resolving
// twice is a no-op.
func (c *Challenge) Resolve(code string) {
	c.once.Do(func() {
		c.response <- code
		close(c.response)
	})
}

// Session is the ephemeral authentication state of one scraper run. It is
// created at login, owned by a single run, and discarded when the run ends.
// It is never persisted.
type Session struct {
	Bank string

	mu         sync.Mutex
	state      State
	challenges chan *Challenge
	resolver   func(context.Context, *Challenge)
}

// NewSession creates an unauthenticated session for the given bank.
func NewSession(bank string) *Session {
	return &Session{
		Bank:       bank,
		state:      StateUnauthenticated,
		challenges: make(chan *Challenge, 1),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Expire marks the session expired. Subsequent fetches fail; the run must
// log in again with a fresh session.
func (s *Session) Expire() {
	s.setState(StateExpired)
}

// PendingChallenge delivers MFA challenges raised during login. Whoever
// drives the run (CLI prompt, API callback) receives from this channel and
// calls Resolve on the challenge.
func (s *Session) PendingChallenge() <-chan *Challenge {
	return s.challenges
}

// awaitChallenge suspends login on an MFA prompt. It publishes the
// challenge, waits for the response, and restores the submitting state on
// success. An unresolved challenge at context deadline fails the session.
func (s *Session) awaitChallenge(ctx context.Context, prompt string) (string, error) {
	challenge := &Challenge{
		Bank:     s.Bank,
		Prompt:   prompt,
		response: make(chan string, 1),
	}
	s.setState(StatePendingChallenge)
	select {
	case s.challenges <- challenge:
	default:
		s.setState(StateFailed)
		return "", apperrors.WithMessage(apperrors.ErrChallengePending, "a previous challenge is still unresolved")
	}
	if s.resolver != nil {
		go s.resolver(ctx, challenge)
	}

	select {
	case code := <-challenge.response:
		s.setState(StateSubmittingCredentials)
		return code, nil
	case <-ctx.Done():
		s.setState(StateFailed)
		return "", apperrors.Wrap(apperrors.ErrChallengePending, ctx.Err())
	}
}

// requireAuthenticated guards operations that need a live login. A pending
// challenge is reported as an auth failure wrapping the challenge error so
// callers can distinguish the two.
func (s *Session) requireAuthenticated() error {
	switch s.State() {
	case StateAuthenticated:
		return nil
	case StatePendingChallenge:
		return apperrors.Wrap(apperrors.ErrAuthFailed, apperrors.ErrChallengePending)
	case StateExpired:
		return apperrors.WithMessage(apperrors.ErrAuthFailed, "session has expired")
	default:
		return apperrors.WithMessage(apperrors.ErrAuthFailed, "session is not authenticated")
	}
}
