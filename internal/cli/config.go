package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/config"
	"github.com/vault-cli/credvault/internal/util"
)

// configKey is one settable configuration value.
type configKey struct {
	name string
	get  func(*config.Config) string
	set  func(*config.Config, string) error
}

var configKeys = []configKey{
	{"vault_path", func(c *config.Config) string { return c.VaultPath }, func(c *config.Config, v string) error { c.VaultPath = v; return nil }},
	{"owner", func(c *config.Config) string { return c.Owner }, func(c *config.Config, v string) error { c.Owner = v; return nil }},
	{"log_level", func(c *config.Config) string { return c.LogLevel }, func(c *config.Config, v string) error { c.LogLevel = v; return nil }},
	{"log_file", func(c *config.Config) string { return c.LogFile }, func(c *config.Config, v string) error { c.LogFile = v; return nil }},
	{"passkey_key_file", func(c *config.Config) string { return c.KeyFile }, func(c *config.Config, v string) error { c.KeyFile = v; return nil }},
	{"clipboard_ttl", func(c *config.Config) string { return c.ClipboardTTL.String() }, durationSetter(func(c *config.Config) *time.Duration { return &c.ClipboardTTL })},
	{"kdf.memory", func(c *config.Config) string { return strconv.FormatUint(uint64(c.KDF.Memory), 10) }, func(c *config.Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		c.KDF.Memory = uint32(n)
		return err
	}},
	{"kdf.iterations", func(c *config.Config) string { return strconv.FormatUint(uint64(c.KDF.Iterations), 10) }, func(c *config.Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		c.KDF.Iterations = uint32(n)
		return err
	}},
	{"kdf.parallelism", func(c *config.Config) string { return strconv.FormatUint(uint64(c.KDF.Parallelism), 10) }, func(c *config.Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		c.KDF.Parallelism = uint8(n)
		return err
	}},
	{"import.batch_size", func(c *config.Config) string { return strconv.Itoa(c.Import.BatchSize) }, func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Import.BatchSize = n
		return err
	}},
	{"security.sudo_window", func(c *config.Config) string { return c.Security.SudoWindow.String() }, durationSetter(func(c *config.Config) *time.Duration { return &c.Security.SudoWindow })},
	{"security.auto_lock_ttl", func(c *config.Config) string { return c.Security.AutoLockTTL.String() }, durationSetter(func(c *config.Config) *time.Duration { return &c.Security.AutoLockTTL })},
	{"security.max_failed_attempts", func(c *config.Config) string { return strconv.Itoa(c.Security.MaxFailedAttempts) }, func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Security.MaxFailedAttempts = n
		return err
	}},
}

func durationSetter(field func(*config.Config) *time.Duration) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func lookupConfigKey(name string) (configKey, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, k := range configKeys {
		if k.name == normalized {
			return k, nil
		}
	}
	return configKey{}, fmt.Errorf("%w: unknown configuration key %q", util.ErrInvalidInput, name)
}

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `View and change configuration settings.

get shows the effective values, including environment and flag overrides.
set edits the config file only.

Example:
  credvault config path
  credvault config get
  credvault config get security.sudo_window
  credvault config set clipboard_ttl 15s`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "Show configuration values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return a.runConfigGetAll(cmd)
			}
			return a.runConfigGet(cmd, args[0])
		},
	}, &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConfigSet(cmd, args[0], args[1])
		},
	}, &cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOutput(cmd.OutOrStdout(), "%s\n", a.cfgFile)
		},
	})
	return cmd
}

func (a *app) runConfigGetAll(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	_ = writeOutput(out, "Configuration file: %s\n\n", a.cfgFile)
	for _, k := range configKeys {
		if err := writeOutput(out, "%s: %s\n", k.name, k.get(a.cfg)); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) runConfigGet(cmd *cobra.Command, name string) error {
	k, err := lookupConfigKey(name)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), "%s\n", k.get(a.cfg))
}

func (a *app) runConfigSet(cmd *cobra.Command, name, value string) error {
	k, err := lookupConfigKey(name)
	if err != nil {
		return err
	}

	fileCfg, err := config.LoadFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	if err := k.set(fileCfg, value); err != nil {
		return fmt.Errorf("%w: %s: %v", util.ErrInvalidInput, k.name, err)
	}
	if err := fileCfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	}

	if err := config.SaveConfig(fileCfg, a.cfgFile); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	a.log.Info().Str("key", k.name).Msg("configuration updated")
	return success(cmd.OutOrStdout(), "Configuration updated: %s = %s", k.name, k.get(fileCfg))
}
