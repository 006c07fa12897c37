// accolade/cmd/accoladed/evaluate.go

package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/runtime"
)

// evaluation is one line of evaluate output.
type evaluation struct {
	File      string             `json:"file"`
	EventID   string             `json:"event_id,omitempty"`
	Decisions []runtime.Decision `json:"decisions,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <event.json>...",
		Short: "Dry-run events against the rules without recording awards",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			deps, err := setupDependencies(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer deps.Close()

			engine, err := newEngine(cfg, deps)
			if err != nil {
				return err
			}
			if err := engine.LoadRules(ctx); err != nil {
				return err
			}

			bar := progressbar.NewOptions(len(args),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("evaluating"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			enc := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, path := range args {
				res := evaluation{File: path}
				ev, err := readEvent(path)
				if err != nil {
					res.Error = err.Error()
					failed++
				} else {
					res.EventID = ev.ID
					res.Decisions = engine.Evaluate(ctx, ev)
				}
				if err := enc.Encode(res); err != nil {
					return err
				}
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			if failed > 0 {
				return fmt.Errorf("%d of %d events could not be read", failed, len(args))
			}
			return nil
		},
	}
}

func readEvent(path string) (*event.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return event.Decode(data)
}
