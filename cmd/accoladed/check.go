// accolade/cmd/accoladed/check.go

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rgehrsitz/accolade/pkg/rules"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [rules-dir]",
		Short: "Validate rule files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.v.GetString("rules.directory")
			if len(args) == 1 {
				dir = args[0]
			}
			loader, err := rules.NewLoader()
			if err != nil {
				return err
			}
			loaded, problems, err := loader.LoadDir(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range loaded {
				fmt.Fprintf(out, "ok    %s (%s)\n", r.Name, r.Source)
			}
			for _, p := range problems {
				fmt.Fprintf(out, "FAIL  %v\n", p)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d of %d rule files are invalid", len(problems), len(loaded)+len(problems))
			}
			return nil
		},
	}
}
