// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securestore.
//
// go-securestore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the root command
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		printer := NewPrinter(globalOutput(cmd), os.Stderr)
		_ = printer.PrintError(err) // Error printing to stderr is best-effort
	}
	return err
}

// NewRootCmd builds the command tree with a fresh configuration.
func NewRootCmd() *cobra.Command {
	return newRootCmd(NewConfig())
}

func newRootCmd(cfg *Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "securestore",
		Short: "securestore CLI - encrypted item storage under a protected key",
		Long: `securestore stores named string items encrypted under a P-256 key
that never leaves the key store. Keys can be bound to an access policy that
requires user authentication before each decryption or signature.

Access policies:
  - open
  - any-biometric-or-passcode
  - any-biometric-only
  - current-biometric-only
  - current-biometric-or-passcode`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Resolve()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.WriteMetrics()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "",
		"config file (default is $SECURESTORE_CONFIG)")
	flags.StringVar(&cfg.StoreDir, "store-dir", "",
		"directory holding keys and items (overrides store.path)")
	flags.StringVar(&cfg.ID, "id", "",
		"identity id (overrides identity.id)")
	flags.StringVar(&cfg.Policy, "policy", "",
		"access policy for new keys (overrides identity.access_policy)")
	flags.StringVarP(&cfg.OutputFormat, "output", "o", "text",
		"output format (text, json)")
	flags.StringVar(&cfg.MetricsOut, "metrics-out", "",
		"write Prometheus metrics to this file after the command")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(newVersionCmd(cfg))
	rootCmd.AddCommand(newItemCmds(cfg)...)
	rootCmd.AddCommand(newKeyCmds(cfg)...)
	return rootCmd
}

func globalOutput(cmd *cobra.Command) string {
	if f := cmd.PersistentFlags().Lookup("output"); f != nil {
		return f.Value.String()
	}
	return string(OutputFormatText)
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(cfg *Config, w io.Writer, format string, args ...interface{}) {
	if cfg.Verbose {
		fmt.Fprintf(w, "[VERBOSE] "+format+"\n", args...)
	}
}
