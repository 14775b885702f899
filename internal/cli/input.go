package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/vault-cli/credvault/internal/util"
)

// Prompter reads answers from the user.
type Prompter interface {
	// Secret reads a line without echo.
	Secret(prompt string) (string, error)
	// Line reads a line of regular input.
	Line(prompt string) (string, error)
}

// TerminalPrompter prompts on a terminal, falling back to plain line reads
// when input is not a terminal.
type TerminalPrompter struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader
}

// NewTerminalPrompter returns a prompter reading in and writing prompts to out.
func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out, reader: bufio.NewReader(in)}
}

// Secret prompts for a password without echoing to the terminal.
func (p *TerminalPrompter) Secret(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		return p.readLine()
	}

	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

// Line prompts for regular input.
func (p *TerminalPrompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	return p.readLine()
}

func (p *TerminalPrompter) readLine() (string, error) {
	input, err := p.reader.ReadString('\n')
	if errors.Is(err, io.EOF) && input == "" {
		return "", util.ErrCancelled
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(input, "\r\n"), nil
}

// promptSecretConfirm prompts for a secret twice.
func promptSecretConfirm(p Prompter, prompt, confirmPrompt string) (string, error) {
	secret, err := p.Secret(prompt)
	if err != nil {
		return "", err
	}

	confirm, err := p.Secret(confirmPrompt)
	if err != nil {
		return "", err
	}

	if secret != confirm {
		return "", fmt.Errorf("%w: entries do not match", util.ErrInvalidInput)
	}
	return secret, nil
}

// promptConfirm prompts for yes/no confirmation.
func promptConfirm(p Prompter, prompt string, defaultYes bool) (bool, error) {
	suffix := " [y/N]: "
	if defaultYes {
		suffix = " [Y/n]: "
	}

	input, err := p.Line(prompt + suffix)
	if err != nil {
		return false, err
	}

	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return defaultYes, nil
	}
	return input == "y" || input == "yes", nil
}

// promptChoice prompts for one of choices by number or name.
func promptChoice(p Prompter, w io.Writer, prompt string, choices []string) (string, error) {
	fmt.Fprintln(w, prompt)
	for i, choice := range choices {
		fmt.Fprintf(w, "  %d) %s\n", i+1, choice)
	}

	input, err := p.Line(fmt.Sprintf("Enter choice (1-%d): ", len(choices)))
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)

	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(choices) {
		return choices[n-1], nil
	}
	for _, choice := range choices {
		if strings.EqualFold(choice, input) {
			return choice, nil
		}
	}
	return "", fmt.Errorf("%w: invalid choice %q", util.ErrInvalidInput, input)
}
