package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gupload/cli/internal/logging"
)

//go:generate mockgen -destination=mocks/mock_api.go -package=mocks github.com/gupload/cli/internal/auth API

const (
	// DefaultAttempts is the number of login attempts before giving up
	DefaultAttempts = 3
	// DefaultRetryDelay is the wait between failed login attempts
	DefaultRetryDelay = 10 * time.Second
)

// API is the remote service that exchanges a username and password for a session
type API interface {
	Authenticate(username, password string) (*Session, error)
}

// Authenticator logs in to the remote API and caches the resulting session.
// It is not safe for concurrent use.
type Authenticator struct {
	creds    Credentials
	api      API
	logger   *slog.Logger
	attempts int
	backOff  backoff.BackOff
	sleep    func(time.Duration)

	session *Session
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAttempts sets how many times login is tried
func WithAttempts(n int) Option {
	return func(a *Authenticator) {
		if n > 0 {
			a.attempts = n
		}
	}
}

// WithBackOff sets the delay policy between failed attempts
func WithBackOff(b backoff.BackOff) Option {
	return func(a *Authenticator) {
		if b != nil {
			a.backOff = b
		}
	}
}

// WithSleep replaces time.Sleep, mostly for tests
func WithSleep(sleep func(time.Duration)) Option {
	return func(a *Authenticator) {
		if sleep != nil {
			a.sleep = sleep
		}
	}
}

// NewAuthenticator creates an Authenticator for the given credentials
func NewAuthenticator(creds Credentials, api API, opts ...Option) *Authenticator {
	a := &Authenticator{
		creds:    creds,
		api:      api,
		logger:   slog.New(slog.DiscardHandler),
		attempts: DefaultAttempts,
		backOff:  backoff.NewConstantBackOff(DefaultRetryDelay),
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Credentials returns the credentials this Authenticator logs in with
func (a *Authenticator) Credentials() Credentials {
	return a.creds
}

// Session returns the cached session, if any
func (a *Authenticator) Session() (*Session, bool) {
	return a.session, a.session != nil
}

// Invalidate drops the cached session so the next Authenticate call logs in again
func (a *Authenticator) Invalidate() {
	a.session = nil
}

var errEmptySession = errors.New("remote API returned no session")

type attemptResult struct {
	session *Session
	err     error
}

func (a *Authenticator) attempt() attemptResult {
	session, err := a.api.Authenticate(a.creds.Username, a.creds.Password)
	if err == nil && session == nil {
		err = errEmptySession
	}
	return attemptResult{session: session, err: err}
}

// Authenticate logs in unless a session is already cached and force is false.
// It returns true on a cache hit or a successful login. Failed attempts are
// logged at critical level and retried after a delay. Once the attempts run
// out it returns false and leaves any previous session in place.
func (a *Authenticator) Authenticate(force bool) bool {
	if a.session != nil && !force {
		return true
	}

	a.logger.Info("logging in to Garmin Connect")
	a.logger.Debug("login credentials", "username", a.creds.Username, "password", a.creds.MaskedPassword())

	a.backOff.Reset()
	for n := 1; n <= a.attempts; n++ {
		result := a.attempt()
		if result.err == nil {
			a.session = result.session
			a.logger.Debug("login successful", "attempt", n, "session", result.session.ID)
			return true
		}

		a.logger.Log(context.Background(), logging.LevelCritical, "login failure",
			"attempt", n, "max_attempts", a.attempts, "error", result.err)

		// No wait once the last attempt has failed.
		if n == a.attempts {
			break
		}
		delay := a.backOff.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		a.sleep(delay)
	}

	return false
}
