package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"assetregistry/pkg/client"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	server  string
	token   string
	output  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "registryctl",
		Short: "Asset registry command line client",
		Long: `registryctl registers assets, transfers ownership and reads the
registry's audit trail over its HTTP API.

Mutating commands need a bearer token naming the caller's address:

  export REGISTRY_TOKEN=$(registryctl token --identity 0xYourAddress)
  registryctl register --name "deed-42" --metadata "lot 7"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch flags.output {
			case outputJSON, outputTable:
				return nil
			default:
				return fmt.Errorf("unknown output format %q (json|table)", flags.output)
			}
		},
	}

	root.PersistentFlags().StringVar(&flags.server, "server", envOr("REGISTRY_URL", "http://localhost:8080"), "registry base URL (env REGISTRY_URL)")
	root.PersistentFlags().StringVar(&flags.token, "token", os.Getenv("REGISTRY_TOKEN"), "bearer token for mutations (env REGISTRY_TOKEN)")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", outputJSON, "output format: json|table")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newHashCmd(flags),
		newTokenCmd(flags),
		newRegisterCmd(flags),
		newVerifyCmd(flags),
		newExistsCmd(flags),
		newOwnerCmd(flags),
		newTransferCmd(flags),
		newUpdateMetadataCmd(flags),
		newOwnedCmd(flags),
		newHistoryCmd(flags),
		newEventsCmd(flags),
	)
	return root
}

func (f *globalFlags) client() (*client.Client, error) {
	return client.New(f.server, client.WithToken(f.token))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
