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
	"context"
	"fmt"

	"github.com/jeremyhahn/go-securestore/pkg/correlation"
	"github.com/jeremyhahn/go-securestore/pkg/securestore"
	"github.com/jeremyhahn/go-securestore/pkg/types"
	"github.com/spf13/cobra"
)

// withService opens the service for the configured identity and runs fn
// with an operation ID in the context.
func withService(cfg *Config, cmd *cobra.Command, fn func(ctx context.Context, svc *securestore.Service, printer *Printer) error) error {
	svc, err := cfg.CreateService()
	if err != nil {
		return err
	}
	ctx, id := correlation.Ensure(cmd.Context())
	printVerbose(cfg, cfg.Stderr, "identity %s, operation %s", svc.Identity().ID, id)
	return fn(ctx, svc, NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()))
}

func newItemCmds(cfg *Config) []*cobra.Command {
	saveCmd := &cobra.Command{
		Use:   "save <name> <value>",
		Short: "Encrypt and save an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				if err := svc.SaveItem(ctx, args[0], args[1]); err != nil {
					return err
				}
				return printer.PrintSuccess(fmt.Sprintf("Saved item: %s", args[0]))
			})
		},
	}

	readCmd := &cobra.Command{
		Use:   "read <name>",
		Short: "Decrypt and print an item",
		Long: `Decrypt and print an item. When the key requires authentication
the prompt shows the identity's prompt strings, or the ones given here.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			fallback, _ := cmd.Flags().GetString("fallback-title")
			cancel, _ := cmd.Flags().GetString("cancel-title")

			var prompt *types.PromptStrings
			if p := (types.PromptStrings{Reason: reason, FallbackTitle: fallback, CancelTitle: cancel}); !p.IsZero() {
				prompt = &p
			}
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				value, err := svc.ReadItem(ctx, args[0], prompt)
				if err != nil {
					return err
				}
				return printer.PrintValue("value", value)
			})
		},
	}
	readCmd.Flags().String("reason", "", "authentication prompt reason")
	readCmd.Flags().String("fallback-title", "", "authentication prompt fallback button title")
	readCmd.Flags().String("cancel-title", "", "authentication prompt cancel button title")

	existsCmd := &cobra.Command{
		Use:   "exists <name>",
		Short: "Report whether an item exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				exists, err := svc.ItemExists(ctx, args[0])
				if err != nil {
					return err
				}
				return printer.PrintExists(args[0], exists)
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				if err := svc.DeleteItem(ctx, args[0]); err != nil {
					return err
				}
				return printer.PrintSuccess(fmt.Sprintf("Deleted item: %s", args[0]))
			})
		},
	}

	destroyCmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the identity's key pair and all of its items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				if err := svc.DeleteStore(ctx); err != nil {
					return err
				}
				return printer.PrintSuccess(fmt.Sprintf("Deleted store: %s", svc.Identity().ID))
			})
		},
	}

	return []*cobra.Command{saveCmd, readCmd, existsCmd, deleteCmd, destroyCmd}
}
