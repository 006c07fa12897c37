// accolade/cmd/accoladed/migrate.go

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger and archive schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			deps, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Ledger.CreateSchema(cmd.Context()); err != nil {
				return err
			}
			if err := deps.Archive.CreateSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schemas are up to date")
			return nil
		},
	}
}
