// Package sudo implements the re-authentication gate that guards sensitive
// actions such as revealing a password or exporting the vault.
package sudo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vault-cli/credvault/internal/logger"
	"github.com/vault-cli/credvault/internal/session"
	"github.com/vault-cli/credvault/internal/vault"
)

// Mode is one proof-of-possession method.
type Mode int

const (
	ModePIN Mode = iota + 1
	ModePasskey
	ModePassword
)

// priority is the order in which modes are offered.
var priority = []Mode{ModePIN, ModePasskey, ModePassword}

func (m Mode) String() string {
	switch m {
	case ModePIN:
		return "pin"
	case ModePasskey:
		return "passkey"
	case ModePassword:
		return "password"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var (
	// ErrFlowClosed is returned when submitting to a finished or cancelled flow.
	ErrFlowClosed = errors.New("verification flow is closed")
	// ErrModeUnavailable is returned by Use for a mode that is not offered.
	ErrModeUnavailable = errors.New("verification mode not available")
	// ErrAttemptsExhausted is wrapped into the error of the last allowed PIN attempt.
	ErrAttemptsExhausted = errors.New("too many failed attempts")
	// ErrBusy is returned when the session is being verified outside the gate.
	ErrBusy = errors.New("session verification already in progress")
)

//go:generate mockgen -source=gate.go -destination=../mock/verifier_mock.go -package=mock

// Verifier unwraps the vault key with each supported method.
// *vault.Keychain implements it.
type Verifier interface {
	Methods(ctx context.Context, ownerID string) (vault.Methods, error)
	UnlockPassword(ctx context.Context, ownerID, password string) ([]byte, error)
	UnlockPIN(ctx context.Context, ownerID, pin string) ([]byte, error)
	UnlockPasskey(ctx context.Context, ownerID string) ([]byte, error)
}

// Gate serializes verification flows for one session.
type Gate struct {
	sess           *session.Session
	verifier       Verifier
	maxPINAttempts int
	log            *logger.Logger

	mu      sync.Mutex
	pending *Flow
}

// Option configures a Gate.
type Option func(*Gate)

// WithMaxPINAttempts limits failed PIN attempts per flow. Zero means unlimited.
func WithMaxPINAttempts(n int) Option {
	return func(g *Gate) { g.maxPINAttempts = n }
}

// WithLogger sets the gate logger.
func WithLogger(l *logger.Logger) Option {
	return func(g *Gate) { g.log = l.Component("sudo") }
}

// NewGate creates a gate for sess.
func NewGate(sess *session.Session, verifier Verifier, opts ...Option) *Gate {
	g := &Gate{sess: sess, verifier: verifier, maxPINAttempts: 5, log: logger.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request gates a sensitive action. When the session was recently verified
// onSuccess runs immediately and the returned flow is nil. Otherwise the
// pending flow is returned, created if needed; onSuccess or onFailure runs
// exactly once when it ends, and neither runs if it is cancelled.
// onFailure may be nil.
func (g *Gate) Request(ctx context.Context, onSuccess func(), onFailure func(error)) (*Flow, error) {
	if g.sess.RecentlyVerified() {
		if onSuccess != nil {
			onSuccess()
		}
		return nil, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending != nil {
		g.pending.attach(onSuccess, onFailure)
		return g.pending, nil
	}

	methods, err := g.verifier.Methods(ctx, g.sess.OwnerID())
	if err != nil {
		return nil, fmt.Errorf("failed to load unlock methods: %w", err)
	}

	var modes []Mode
	for _, m := range priority {
		if offered(methods, m) {
			modes = append(modes, m)
		}
	}
	if len(modes) == 0 {
		return nil, vault.ErrNotInitialized
	}

	if !g.sess.BeginVerify() {
		return nil, ErrBusy
	}

	f := &Flow{gate: g, modes: modes, mode: modes[0], done: make(chan struct{})}
	f.attach(onSuccess, onFailure)
	g.pending = f

	g.log.Debug().Str("mode", f.mode.String()).Int("fallbacks", len(modes)-1).Msg("verification requested")
	return f, nil
}

// Pending returns the active flow, if any.
func (g *Gate) Pending() *Flow {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

func offered(m vault.Methods, mode Mode) bool {
	switch mode {
	case ModePIN:
		return m.PIN
	case ModePasskey:
		return m.Passkey
	case ModePassword:
		return m.Password
	}
	return false
}

// Flow is one pending verification. It presents a single mode at a time.
type Flow struct {
	gate *Gate

	submitMu sync.Mutex

	mu          sync.Mutex
	modes       []Mode
	mode        Mode
	pinFailures int
	onSuccess   []func()
	onFailure   []func(error)
	closed      bool
	done        chan struct{}
}

func (f *Flow) attach(onSuccess func(), onFailure func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if onSuccess != nil {
		f.onSuccess = append(f.onSuccess, onSuccess)
	}
	if onFailure != nil {
		f.onFailure = append(f.onFailure, onFailure)
	}
}

// Mode returns the mode currently presented.
func (f *Flow) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// Fallbacks returns the other offered modes in priority order.
func (f *Flow) Fallbacks() []Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Mode
	for _, m := range f.modes {
		if m != f.mode {
			out = append(out, m)
		}
	}
	return out
}

// Use switches the flow to another offered mode.
func (f *Flow) Use(mode Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlowClosed
	}
	for _, m := range f.modes {
		if m == mode {
			f.mode = mode
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModeUnavailable, mode)
}

// Done is closed when the flow succeeds, fails or is cancelled.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// Submit attempts the current mode with secret, which is zeroed before
// Submit returns. The passkey mode ignores secret. A rejected attempt
// returns an error wrapping vault.ErrAuthFailed and leaves the flow open.
func (f *Flow) Submit(ctx context.Context, secret []byte) error {
	defer vault.Zeroize(secret)

	f.submitMu.Lock()
	defer f.submitMu.Unlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	mode := f.mode
	f.mu.Unlock()

	key, err := f.handler(mode)(ctx, secret)
	if err == nil {
		if !f.succeed(key) {
			return ErrFlowClosed
		}
		return nil
	}

	if errors.Is(err, vault.ErrAuthFailed) || errors.Is(err, vault.ErrInvalidPIN) {
		return f.reject(mode, err)
	}

	f.fail(err)
	return err
}

// Cancel ends the flow without invoking any callback. The session returns
// to the state it had before the request.
func (f *Flow) Cancel() {
	if _, _, ok := f.finish(f.gate.sess.Abort); !ok {
		return
	}
	f.gate.log.Debug().Msg("verification cancelled")
}

type handlerFunc func(ctx context.Context, secret []byte) ([]byte, error)

func (f *Flow) handler(mode Mode) handlerFunc {
	g := f.gate
	owner := g.sess.OwnerID()
	switch mode {
	case ModePIN:
		return func(ctx context.Context, secret []byte) ([]byte, error) {
			return g.verifier.UnlockPIN(ctx, owner, string(secret))
		}
	case ModePasskey:
		return func(ctx context.Context, _ []byte) ([]byte, error) {
			return g.verifier.UnlockPasskey(ctx, owner)
		}
	case ModePassword:
		return func(ctx context.Context, secret []byte) ([]byte, error) {
			return g.verifier.UnlockPassword(ctx, owner, string(secret))
		}
	}
	return func(context.Context, []byte) ([]byte, error) {
		return nil, fmt.Errorf("%w: %s", ErrModeUnavailable, mode)
	}
}

func (f *Flow) reject(mode Mode, cause error) error {
	f.gate.log.Info().Str("mode", mode.String()).Msg("verification attempt rejected")

	err := fmt.Errorf("%s rejected: %w", mode, vault.ErrAuthFailed)
	if mode != ModePIN {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if errors.Is(cause, vault.ErrInvalidPIN) {
		return fmt.Errorf("%w: %w", err, vault.ErrInvalidPIN)
	}
	f.pinFailures++
	if limit := f.gate.maxPINAttempts; limit > 0 && f.pinFailures >= limit {
		f.withdraw(ModePIN)
		return fmt.Errorf("%w: %w", ErrAttemptsExhausted, err)
	}
	return err
}

// withdraw removes mode and moves to the next offered mode. f.mu must be held.
func (f *Flow) withdraw(mode Mode) {
	kept := f.modes[:0]
	for _, m := range f.modes {
		if m != mode {
			kept = append(kept, m)
		}
	}
	f.modes = kept
	if f.mode == mode && len(kept) > 0 {
		f.mode = kept[0]
	}
}

// succeed installs key unless the flow was closed while it was derived, in
// which case the key is discarded and false is returned.
func (f *Flow) succeed(key []byte) bool {
	onSuccess, _, ok := f.finish(func() { f.gate.sess.Install(key) })
	if !ok {
		vault.Zeroize(key)
		f.gate.log.Debug().Msg("verification finished after cancel; key discarded")
		return false
	}
	f.gate.log.Info().Msg("verification succeeded")
	for _, fn := range onSuccess {
		fn()
	}
	return true
}

func (f *Flow) fail(err error) {
	_, onFailure, ok := f.finish(f.gate.sess.Abort)
	if !ok {
		return
	}
	f.gate.log.Error().Err(err).Msg("verification failed")
	for _, fn := range onFailure {
		fn(err)
	}
}

// finish marks the flow finished, applies settle to the session, detaches the
// flow from the gate and hands back the attached callbacks. ok is false, and
// settle is not run, if the flow was already closed.
func (f *Flow) finish(settle func()) (onSuccess []func(), onFailure []func(error), ok bool) {
	g := f.gate
	g.mu.Lock()
	defer g.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, false
	}
	f.closed = true
	settle()

	if g.pending == f {
		g.pending = nil
	}
	close(f.done)
	return f.onSuccess, f.onFailure, true
}
