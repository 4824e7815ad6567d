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
	"encoding/base64"
	"fmt"

	"github.com/jeremyhahn/go-securestore/pkg/encoding/jwt"
	"github.com/jeremyhahn/go-securestore/pkg/securestore"
	"github.com/jeremyhahn/go-securestore/pkg/types"
	"github.com/spf13/cobra"
)

// tagLister is implemented by key stores that can enumerate their entries.
type tagLister interface {
	Tags() ([]string, error)
}

func newKeyCmds(cfg *Config) []*cobra.Command {
	pubkeyCmd := &cobra.Command{
		Use:   "pubkey",
		Short: "Export the public key as a JWK or did:key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("format")
			format, err := types.ParseKeyFormat(name)
			if err != nil {
				return err
			}
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				key, err := svc.Engine().PublicKey(ctx, format)
				if err != nil {
					return err
				}
				return printer.PrintPublicKey(format.String(), key)
			})
		},
	}
	pubkeyCmd.Flags().String("format", "jwk", "key format (jwk, did)")

	thumbprintCmd := &cobra.Command{
		Use:   "thumbprint",
		Short: "Print the RFC 7638 JWK thumbprint of the public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				thumbprint, err := svc.Engine().Thumbprint(ctx)
				if err != nil {
					return err
				}
				return printer.PrintValue("thumbprint", thumbprint)
			})
		},
	}

	signCmd := &cobra.Command{
		Use:   "sign <data>",
		Short: "Sign data and print the base64url r||s signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				signature, err := svc.Engine().Sign(ctx, []byte(args[0]))
				if err != nil {
					return err
				}
				return printer.PrintValue("signature", base64.RawURLEncoding.EncodeToString(signature))
			})
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <data> <signature>",
		Short: "Verify a base64url r||s signature with the public key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			signature, err := base64.RawURLEncoding.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("signature is not base64url: %w", err)
			}
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				ok, err := svc.Engine().Verify([]byte(args[0]), signature)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("signature verification failed")
				}
				return printer.PrintSuccess("Signature is valid")
			})
		},
	}

	signJWTCmd := &cobra.Command{
		Use:   "sign-jwt <claims-json>",
		Short: "Sign a compact ES256 JWT over the given JSON claims",
		Long: `Sign a compact ES256 JWT over the given JSON claims. The kid header
defaults to the key's JWK thumbprint.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kid, _ := cmd.Flags().GetString("kid")
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				if kid == "" {
					thumbprint, err := svc.Engine().Thumbprint(ctx)
					if err != nil {
						return err
					}
					kid = thumbprint
				}
				token, err := jwt.NewSigner(svc.Engine(), jwt.WithKeyID(kid)).SignJSON(ctx, []byte(args[0]))
				if err != nil {
					return err
				}
				return printer.PrintValue("token", token)
			})
		},
	}
	signJWTCmd.Flags().String("kid", "", "key id header (default is the JWK thumbprint)")

	listKeysCmd := &cobra.Command{
		Use:   "list-keys",
		Short: "List the tags of every key in the key store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				lister, ok := svc.Manager().Store().(tagLister)
				if !ok {
					return fmt.Errorf("key store does not support listing keys")
				}
				tags, err := lister.Tags()
				if err != nil {
					return err
				}
				return printer.PrintList("tags", tags)
			})
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge-legacy",
		Short: "Remove key entries left by older tag schemes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, cmd, func(ctx context.Context, svc *securestore.Service, printer *Printer) error {
				purged, err := svc.Manager().PurgeLegacyEntries(svc.Identity())
				if err != nil {
					return err
				}
				if purged {
					return printer.PrintSuccess("Removed legacy key entries")
				}
				return printer.PrintSuccess("No legacy key entries found")
			})
		},
	}

	return []*cobra.Command{pubkeyCmd, thumbprintCmd, signCmd, verifyCmd, signJWTCmd, listKeysCmd, purgeCmd}
}
