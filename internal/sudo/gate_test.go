package sudo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vault-cli/credvault/internal/mock"
	"github.com/vault-cli/credvault/internal/session"
	"github.com/vault-cli/credvault/internal/sudo"
	"github.com/vault-cli/credvault/internal/vault"
)

const owner = "owner-1"

func newGate(t *testing.T, opts ...sudo.Option) (*sudo.Gate, *session.Session, *mock.MockVerifier) {
	t.Helper()
	ctrl := gomock.NewController(t)
	verifier := mock.NewMockVerifier(ctrl)
	engine := vault.NewCryptoEngine(vault.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1})
	sess := session.New(owner, engine)
	return sudo.NewGate(sess, verifier, opts...), sess, verifier
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := vault.GenerateKey()
	require.NoError(t, err)
	return key
}

type counter struct {
	success  int
	failures []error
}

func (c *counter) onSuccess()          { c.success++ }
func (c *counter) onFailure(err error) { c.failures = append(c.failures, err) }

func TestGate_ModePriority(t *testing.T) {
	tests := []struct {
		name      string
		methods   vault.Methods
		mode      sudo.Mode
		fallbacks []sudo.Mode
	}{
		{"all", vault.Methods{Password: true, PIN: true, Passkey: true}, sudo.ModePIN, []sudo.Mode{sudo.ModePasskey, sudo.ModePassword}},
		{"pin and password", vault.Methods{Password: true, PIN: true}, sudo.ModePIN, []sudo.Mode{sudo.ModePassword}},
		{"passkey and password", vault.Methods{Password: true, Passkey: true}, sudo.ModePasskey, []sudo.Mode{sudo.ModePassword}},
		{"password only", vault.Methods{Password: true}, sudo.ModePassword, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, sess, verifier := newGate(t)
			verifier.EXPECT().Methods(gomock.Any(), owner).Return(tt.methods, nil)

			flow, err := gate.Request(context.Background(), func() {}, nil)
			require.NoError(t, err)
			require.NotNil(t, flow)

			assert.Equal(t, tt.mode, flow.Mode())
			assert.Equal(t, tt.fallbacks, flow.Fallbacks())
			assert.Equal(t, session.Verifying, sess.State())
		})
	}
}

func TestGate_NotInitialized(t *testing.T) {
	gate, _, verifier := newGate(t)
	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{}, nil)

	_, err := gate.Request(context.Background(), func() {}, nil)
	assert.ErrorIs(t, err, vault.ErrNotInitialized)
}

func TestGate_SuccessThenRecentlyVerified(t *testing.T) {
	ctx := context.Background()
	gate, sess, verifier := newGate(t)
	key := testKey(t)

	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true, PIN: true}, nil).Times(1)
	verifier.EXPECT().UnlockPIN(gomock.Any(), owner, "1234").Return(key, nil)

	var c counter
	flow, err := gate.Request(ctx, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	secret := []byte("1234")
	require.NoError(t, flow.Submit(ctx, secret))
	assert.Equal(t, []byte{0, 0, 0, 0}, secret, "submitted secret must be zeroed")
	assert.Equal(t, 1, c.success)
	assert.Empty(t, c.failures)
	assert.Equal(t, session.Unlocked, sess.State())
	assert.True(t, sess.RecentlyVerified())

	select {
	case <-flow.Done():
	default:
		t.Fatal("flow should be done")
	}

	// Second request within the window runs immediately without a prompt.
	again, err := gate.Request(ctx, c.onSuccess, c.onFailure)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, 2, c.success)

	assert.ErrorIs(t, flow.Submit(ctx, []byte("1234")), sudo.ErrFlowClosed)
}

func TestGate_SecondRequestAttaches(t *testing.T) {
	ctx := context.Background()
	gate, _, verifier := newGate(t)

	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true}, nil).Times(1)
	verifier.EXPECT().UnlockPassword(gomock.Any(), owner, "master").Return(testKey(t), nil)

	var first, second counter
	f1, err := gate.Request(ctx, first.onSuccess, first.onFailure)
	require.NoError(t, err)
	f2, err := gate.Request(ctx, second.onSuccess, second.onFailure)
	require.NoError(t, err)
	assert.Same(t, f1, f2)
	assert.Same(t, f1, gate.Pending())

	require.NoError(t, f1.Submit(ctx, []byte("master")))
	assert.Equal(t, 1, first.success)
	assert.Equal(t, 1, second.success)
	assert.Nil(t, gate.Pending())
}

func TestGate_FailedAttemptStaysVerifying(t *testing.T) {
	ctx := context.Background()
	gate, sess, verifier := newGate(t)

	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true, PIN: true}, nil)
	verifier.EXPECT().UnlockPIN(gomock.Any(), owner, "0000").Return(nil, vault.ErrAuthFailed)
	verifier.EXPECT().UnlockPassword(gomock.Any(), owner, "master").Return(testKey(t), nil)

	var c counter
	flow, err := gate.Request(ctx, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	err = flow.Submit(ctx, []byte("0000"))
	assert.ErrorIs(t, err, vault.ErrAuthFailed)
	assert.Equal(t, session.Verifying, sess.State())
	assert.Equal(t, sudo.ModePIN, flow.Mode())
	assert.Zero(t, c.success)
	assert.Empty(t, c.failures)

	// A failed PIN does not invalidate the password fallback.
	require.NoError(t, flow.Use(sudo.ModePassword))
	require.NoError(t, flow.Submit(ctx, []byte("master")))
	assert.Equal(t, 1, c.success)
}

func TestGate_MalformedPINIsNotCounted(t *testing.T) {
	ctx := context.Background()
	gate, _, verifier := newGate(t, sudo.WithMaxPINAttempts(1))

	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true, PIN: true}, nil)
	verifier.EXPECT().UnlockPIN(gomock.Any(), owner, "12").Return(nil, vault.ErrInvalidPIN)

	flow, err := gate.Request(ctx, func() {}, nil)
	require.NoError(t, err)

	err = flow.Submit(ctx, []byte("12"))
	assert.ErrorIs(t, err, vault.ErrAuthFailed)
	assert.ErrorIs(t, err, vault.ErrInvalidPIN)
	assert.Equal(t, sudo.ModePIN, flow.Mode())
}

func TestGate_PINAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	gate, _, verifier := newGate(t, sudo.WithMaxPINAttempts(3))

	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true, PIN: true, Passkey: true}, nil)
	verifier.EXPECT().UnlockPIN(gomock.Any(), owner, gomock.Any()).Return(nil, vault.ErrAuthFailed).Times(3)

	flow, err := gate.Request(ctx, func() {}, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		err := flow.Submit(ctx, []byte("9999"))
		require.ErrorIs(t, err, vault.ErrAuthFailed)
		require.NotErrorIs(t, err, sudo.ErrAttemptsExhausted)
	}

	err = flow.Submit(ctx, []byte("9999"))
	assert.ErrorIs(t, err, sudo.ErrAttemptsExhausted)
	assert.ErrorIs(t, err, vault.ErrAuthFailed)

	assert.Equal(t, sudo.ModePasskey, flow.Mode())
	assert.Equal(t, []sudo.Mode{sudo.ModePassword}, flow.Fallbacks())
	assert.ErrorIs(t, flow.Use(sudo.ModePIN), sudo.ErrModeUnavailable)
}

func TestGate_Cancel(t *testing.T) {
	ctx := context.Background()
	gate, sess, verifier := newGate(t)

	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true}, nil).Times(2)

	var c counter
	flow, err := gate.Request(ctx, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	flow.Cancel()
	assert.Equal(t, session.Locked, sess.State())
	assert.Zero(t, c.success)
	assert.Empty(t, c.failures)
	assert.Nil(t, gate.Pending())
	assert.ErrorIs(t, flow.Submit(ctx, []byte("master")), sudo.ErrFlowClosed)

	// Cancelling twice is harmless and a new request starts a fresh flow.
	flow.Cancel()
	next, err := gate.Request(ctx, c.onSuccess, c.onFailure)
	require.NoError(t, err)
	assert.NotSame(t, flow, next)
}

func TestGate_CancelReturnsToUnlocked(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	verifier := mock.NewMockVerifier(ctrl)

	// With no sudo window an unlocked session is prompted on every request.
	sess := session.New(owner, vault.NewDefaultCryptoEngine(), session.WithSudoWindow(0))
	sess.Install(testKey(t))
	gate := sudo.NewGate(sess, verifier)

	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true}, nil)

	flow, err := gate.Request(ctx, func() { t.Fatal("onSuccess must not run") }, nil)
	require.NoError(t, err)
	require.NotNil(t, flow)
	assert.Equal(t, session.Verifying, sess.State())

	flow.Cancel()
	assert.Equal(t, session.Unlocked, sess.State())

	_, err = sess.Encrypt("key survives cancellation")
	assert.NoError(t, err)
}

func TestGate_CancelDuringDerivation(t *testing.T) {
	ctx := context.Background()
	gate, sess, verifier := newGate(t)

	var c counter
	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true}, nil)
	flow, err := gate.Request(ctx, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	key := testKey(t)
	verifier.EXPECT().UnlockPassword(gomock.Any(), owner, "master").
		DoAndReturn(func(context.Context, string, string) ([]byte, error) {
			flow.Cancel()
			return key, nil
		})

	assert.ErrorIs(t, flow.Submit(ctx, []byte("master")), sudo.ErrFlowClosed)
	assert.Equal(t, session.Locked, sess.State())
	assert.False(t, sess.RecentlyVerified())
	assert.Zero(t, c.success)
	assert.Empty(t, c.failures)
	assert.Nil(t, gate.Pending())
	assert.Equal(t, make([]byte, vault.KeySize), key, "discarded key must be wiped")

	_, err = sess.Encrypt("no key installed")
	assert.Error(t, err)
}

func TestGate_InfrastructureFailure(t *testing.T) {
	ctx := context.Background()
	gate, sess, verifier := newGate(t)
	boom := errors.New("store unreachable")

	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true}, nil)
	verifier.EXPECT().UnlockPassword(gomock.Any(), owner, "master").Return(nil, boom)

	var first, second counter
	flow, err := gate.Request(ctx, first.onSuccess, first.onFailure)
	require.NoError(t, err)
	_, err = gate.Request(ctx, second.onSuccess, second.onFailure)
	require.NoError(t, err)

	err = flow.Submit(ctx, []byte("master"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []error{boom}, first.failures)
	assert.Equal(t, []error{boom}, second.failures)
	assert.Zero(t, first.success)
	assert.Equal(t, session.Locked, sess.State())
	assert.Nil(t, gate.Pending())
}

func TestGate_MethodsError(t *testing.T) {
	gate, sess, verifier := newGate(t)
	boom := errors.New("store unreachable")
	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{}, boom)

	_, err := gate.Request(context.Background(), func() {}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, session.Locked, sess.State())
}

func TestGate_PasskeyIgnoresSecret(t *testing.T) {
	ctx := context.Background()
	gate, _, verifier := newGate(t)

	verifier.EXPECT().Methods(gomock.Any(), owner).Return(vault.Methods{Password: true, Passkey: true}, nil)
	verifier.EXPECT().UnlockPasskey(gomock.Any(), owner).Return(testKey(t), nil)

	var c counter
	flow, err := gate.Request(ctx, c.onSuccess, nil)
	require.NoError(t, err)
	require.Equal(t, sudo.ModePasskey, flow.Mode())

	require.NoError(t, flow.Submit(ctx, nil))
	assert.Equal(t, 1, c.success)
}
