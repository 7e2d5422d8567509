package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	jwttoken "assetregistry/internal/jwt_token"
	"assetregistry/pkg/client"
	"assetregistry/pkg/domain"
)

// run executes fn with a client and a context bounded by --timeout.
func run(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, c *client.Client) (any, error)) error {
	c, err := flags.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()
	out, err := fn(ctx, c)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), flags.output, out)
}

func assetArg(raw string) (domain.AssetID, error) {
	id, err := domain.ParseAssetID(raw)
	if err != nil {
		return domain.AssetID{}, fmt.Errorf("asset id %q: %w (use `registryctl hash <name>` to derive one)", raw, err)
	}
	return id, nil
}

func newHashCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <name>",
		Short: "Derive an asset id from a human-readable name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.HashAssetName(args[0])
			return render(cmd.OutOrStdout(), flags.output, hashResult{Name: args[0], AssetID: id})
		},
	}
}

func newTokenCmd(flags *globalFlags) *cobra.Command {
	var (
		identity string
		key      string
		issuer   string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token for an identity",
		Long: `Signs an HS256 token whose subject is the given address, using the
same key the server verifies with (JWT_SIGNING_KEY). Prints the bare token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				return errors.New("signing key is required (--key or JWT_SIGNING_KEY)")
			}
			id, err := domain.ParseAddress(identity)
			if err != nil {
				return err
			}
			token, err := jwttoken.NewJWTService(key, issuer).GenerateAccessToken(id, time.Now(), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "caller address (0x...)")
	cmd.Flags().StringVar(&key, "key", os.Getenv("JWT_SIGNING_KEY"), "HS256 signing key (env JWT_SIGNING_KEY)")
	cmd.Flags().StringVar(&issuer, "issuer", envOr("JWT_ISSUER", "assetregistry"), "token issuer (env JWT_ISSUER)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}

func newRegisterCmd(flags *globalFlags) *cobra.Command {
	var in client.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new asset owned by the token's identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (in.Name == "") == (in.AssetID == "") {
				return errors.New("exactly one of --name or --id is required")
			}
			return run(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				return c.Register(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "asset name, hashed into the id")
	cmd.Flags().StringVar(&in.AssetID, "id", "", "explicit asset id (0x + 64 hex)")
	cmd.Flags().StringVar(&in.Metadata, "metadata", "", "free-form metadata")
	return cmd
}

func newVerifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <asset-id>",
		Short: "Show the registered record of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := assetArg(args[0])
			if err != nil {
				return err
			}
			return run(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				return c.Verify(ctx, id)
			})
		},
	}
}

func newExistsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <asset-id>",
		Short: "Report whether an asset is registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := assetArg(args[0])
			if err != nil {
				return err
			}
			return run(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				exists, err := c.Exists(ctx, id)
				if err != nil {
					return nil, err
				}
				return existsResult{AssetID: id, Exists: exists}, nil
			})
		},
	}
}

func newOwnerCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "owner <asset-id>",
		Short: "Show the current owner of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := assetArg(args[0])
			if err != nil {
				return err
			}
			return run(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				owner, err := c.Owner(ctx, id)
				if err != nil {
					return nil, err
				}
				return ownerResult{AssetID: id, Owner: owner}, nil
			})
		},
	}
}

func newTransferCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <asset-id> <new-owner>",
		Short: "Transfer an asset you own to another identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := assetArg(args[0])
			if err != nil {
				return err
			}
			newOwner, err := domain.ParseAddress(args[1])
			if err != nil {
				return err
			}
			return run(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				return c.Transfer(ctx, id, newOwner)
			})
		},
	}
}

func newUpdateMetadataCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update-metadata <asset-id> <metadata>",
		Short: "Replace the metadata of an asset you own",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := assetArg(args[0])
			if err != nil {
				return err
			}
			return run(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				return c.UpdateMetadata(ctx, id, args[1])
			})
		},
	}
}

func newOwnedCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "owned <identity>",
		Short: "List the assets currently owned by an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := domain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return run(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				ids, err := c.OwnedAssets(ctx, owner)
				if err != nil {
					return nil, err
				}
				return ownedResult{Owner: owner, AssetIDs: ids}, nil
			})
		},
	}
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history <asset-id>",
		Short: "Show the event history of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := assetArg(args[0])
			if err != nil {
				return err
			}
			return run(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				events, err := c.History(ctx, id)
				if err != nil {
					return nil, err
				}
				return eventList(events), nil
			})
		},
	}
}

func newEventsCmd(flags *globalFlags) *cobra.Command {
	var (
		after int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Page through the global event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if after < 0 {
				return errors.New("--after must not be negative")
			}
			return run(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				page, err := c.Events(ctx, after, limit)
				if err != nil {
					return nil, err
				}
				return eventsResult{Events: eventList(page.Events), Next: page.Next}, nil
			})
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "return events with a sequence greater than this")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (server default when 0)")
	return cmd
}
