package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vault-cli/credvault/internal/sudo"
	"github.com/vault-cli/credvault/internal/util"
	"github.com/vault-cli/credvault/internal/vault"
)

// maxPrompts bounds the prompts of one verification across all modes.
const maxPrompts = 10

// errSwitchMode is returned by a mode prompt when the user asks for another method.
var errSwitchMode = errors.New("switch verification mode")

// verify proves possession of the vault key through the sudo gate,
// prompting for the mode it currently presents. On return without error the
// session is unlocked.
func (a *app) verify(ctx context.Context, w io.Writer) error {
	flow, err := a.vault.gate.Request(ctx, nil, nil)
	if err != nil {
		return err
	}
	if flow == nil {
		return nil
	}

	for range maxPrompts {
		mode := flow.Mode()
		secret, err := a.promptMode(w, mode, len(flow.Fallbacks()) > 0)
		if errors.Is(err, errSwitchMode) {
			if err := a.switchMode(w, flow); err != nil {
				flow.Cancel()
				return err
			}
			continue
		}
		if err != nil {
			flow.Cancel()
			return err
		}

		err = flow.Submit(ctx, secret)
		switch {
		case err == nil:
			a.log.Debug().Str("mode", mode.String()).Msg("verified")
			return nil
		case errors.Is(err, sudo.ErrAttemptsExhausted):
			_ = failure(w, "Too many incorrect PINs. Use your %s instead.", flow.Mode())
		case errors.Is(err, vault.ErrInvalidPIN):
			_ = failure(w, "A PIN is exactly %d digits.", vault.PINLength)
		case errors.Is(err, vault.ErrAuthFailed):
			_ = failure(w, "Incorrect %s.", mode)
		default:
			return err
		}
	}

	flow.Cancel()
	return fmt.Errorf("verification abandoned: %w", vault.ErrAuthFailed)
}

// promptMode asks for the secret of mode. An empty answer requests another
// mode when one is offered.
func (a *app) promptMode(w io.Writer, mode sudo.Mode, canSwitch bool) ([]byte, error) {
	hint := ""
	if canSwitch {
		hint = " (leave empty for another method)"
	}

	var answer string
	var err error
	switch mode {
	case sudo.ModePIN:
		answer, err = a.prompt.Secret("PIN" + hint + ": ")
	case sudo.ModePasskey:
		prompt := "Insert your passkey and press Enter: "
		if canSwitch {
			prompt = "Insert your passkey and press Enter (type 'other' for another method): "
		}
		answer, err = a.prompt.Line(prompt)
		if err != nil {
			return nil, err
		}
		if canSwitch && strings.EqualFold(strings.TrimSpace(answer), "other") {
			return nil, errSwitchMode
		}
		return nil, nil
	default:
		answer, err = a.prompt.Secret("Master password" + hint + ": ")
	}
	if err != nil {
		return nil, err
	}

	if answer == "" {
		if canSwitch {
			return nil, errSwitchMode
		}
		return nil, util.ErrCancelled
	}
	return []byte(answer), nil
}

func (a *app) switchMode(w io.Writer, flow *sudo.Flow) error {
	fallbacks := flow.Fallbacks()
	if len(fallbacks) == 1 {
		return flow.Use(fallbacks[0])
	}

	names := make([]string, len(fallbacks))
	for i, m := range fallbacks {
		names[i] = m.String()
	}
	choice, err := promptChoice(a.prompt, w, "Verify with:", names)
	if err != nil {
		return err
	}
	for _, m := range fallbacks {
		if m.String() == choice {
			return flow.Use(m)
		}
	}
	return fmt.Errorf("%w: %s", sudo.ErrModeUnavailable, choice)
}
