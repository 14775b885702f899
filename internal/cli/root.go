// Package cli implements the credvault command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/clipboard"
	"github.com/vault-cli/credvault/internal/config"
	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/logger"
	"github.com/vault-cli/credvault/internal/passgen"
	"github.com/vault-cli/credvault/internal/session"
	"github.com/vault-cli/credvault/internal/store"
	"github.com/vault-cli/credvault/internal/sudo"
	"github.com/vault-cli/credvault/internal/vault"
)

// app holds the state shared by every command of one invocation.
type app struct {
	cfgFile   string
	vaultPath string
	owner     string
	verbose   bool

	cfg    *config.Config
	log    *logger.Logger
	closer io.Closer

	prompt Prompter
	board  *clipboard.Clipboard
	gen    *passgen.Generator

	vault *vaultHandle
}

// vaultHandle is an open vault with a locked session.
type vaultHandle struct {
	store    *store.BoltStore
	keychain *vault.Keychain
	sess     *session.Session
	gate     *sudo.Gate
}

func newApp(p Prompter) *app {
	return &app{
		prompt: p,
		board:  clipboard.New(),
		gen:    passgen.New(),
		log:    logger.Nop(),
	}
}

// Execute runs the credvault command line against the process terminal.
func Execute() error {
	a := newApp(NewTerminalPrompter(os.Stdin, os.Stderr))
	defer a.shutdown()
	return a.rootCommand().Execute()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "credvault",
		Short: "A local, encrypted credential vault",
		Long: `credvault keeps logins, notes and TOTP seeds encrypted on disk.

Every secret is sealed with AES-256-GCM under a random vault key. The vault
key is wrapped by your master password (Argon2id) and, optionally, by a
4-digit PIN or a passkey file. Sensitive actions ask you to prove possession
again, using the PIN first, then the passkey, then the master password.

Exports from Bitwarden, Zoho Vault, Proton Pass and generic JSON can be
imported, together with credvault's own backups.`,
		Version:       "2.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.config/credvault/config.yaml)")
	root.PersistentFlags().StringVar(&a.vaultPath, "vault", "", "vault database path")
	root.PersistentFlags().StringVar(&a.owner, "owner", "", "vault owner")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr at debug level")

	root.AddCommand(
		a.newInitCommand(),
		a.newStatusCommand(),
		a.newAddCommand(),
		a.newGetCommand(),
		a.newListCommand(),
		a.newDeleteCommand(),
		a.newPINCommand(),
		a.newPasskeyCommand(),
		a.newImportCommand(),
		a.newExportCommand(),
		a.newAuditCommand(),
		a.newConfigCommand(),
	)
	return root
}

// setup loads configuration and the logger. Flags win over the environment,
// the config file and defaults.
func (a *app) setup() error {
	path := a.cfgFile
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.vaultPath != "" {
		cfg.VaultPath = a.vaultPath
	}
	if a.owner != "" {
		cfg.Owner = a.owner
	}
	a.cfg = cfg
	a.cfgFile = path

	if a.verbose {
		a.log = logger.NewConsole("debug")
	} else {
		a.log, a.closer = logger.NewFile(cfg.LogFile, cfg.LogLevel)
	}
	a.log.Debug().Str("vault", cfg.VaultPath).Str("owner", cfg.Owner).Msg("configuration loaded")
	return nil
}

func (a *app) shutdown() {
	a.closeVault()
	if a.closer != nil {
		_ = a.closer.Close()
		a.closer = nil
	}
}

// openVault opens the configured vault for the rest of the command.
func (a *app) openVault() error {
	bs, err := store.Open(a.cfg.VaultPath, store.DefaultOptions())
	if err != nil {
		return err
	}
	a.attach(bs)
	return nil
}

func (a *app) attach(bs *store.BoltStore) {
	engine := vault.NewCryptoEngine(a.cfg.Argon2Params())
	engine.OnTiming(func(d time.Duration) {
		a.log.Debug().Dur("duration", d).Msg("key derivation outside the interactive window")
	})

	keychain := vault.NewKeychain(bs, engine,
		vault.WithAuthenticator(&vault.KeyFileAuthenticator{Path: a.cfg.KeyFile}))
	sess := session.New(a.cfg.Owner, engine,
		session.WithTTL(a.cfg.Security.AutoLockTTL),
		session.WithSudoWindow(a.cfg.Security.SudoWindow))
	gate := sudo.NewGate(sess, keychain,
		sudo.WithMaxPINAttempts(a.cfg.Security.MaxFailedAttempts),
		sudo.WithLogger(a.log))

	a.vault = &vaultHandle{store: bs, keychain: keychain, sess: sess, gate: gate}
}

func (a *app) closeVault() {
	if a.vault == nil {
		return
	}
	a.vault.sess.Lock()
	if err := a.vault.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close vault")
	}
	a.vault = nil
}

// audit records op in the vault audit log. Failures are logged, not returned.
func (a *app) audit(ctx context.Context, opType, detail string, success bool) {
	op := &domain.Operation{
		Type:      opType,
		OwnerID:   a.cfg.Owner,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
		Success:   success,
	}
	if err := a.vault.store.LogOperation(context.WithoutCancel(ctx), op); err != nil {
		a.log.Warn().Err(err).Str("op", opType).Msg("failed to write audit entry")
	}
}
