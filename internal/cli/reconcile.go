package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"solarcore/internal/application"
)

func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reconcile [room-id]",
		Short: "Copy canonical device state back into room documents",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("--all takes no room id")
			}
			if !all && len(args) != 1 {
				return fmt.Errorf("expected a room id or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Log, cmd.ErrOrStderr())

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var results []application.ReconcileResult
			if all {
				results, err = a.reconciler.ReconcileAll(cmd.Context())
			} else {
				var res application.ReconcileResult
				res, err = a.reconciler.Reconcile(cmd.Context(), args[0])
				results = append(results, res)
			}
			if perr := printResults(cmd.OutOrStdout(), opts.Format, results); perr != nil {
				return perr
			}
			return err
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&all, "all", false, "reconcile every room")

	return cmd
}

func printResults(w io.Writer, format string, results []application.ReconcileResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		if r.RoomID == "" {
			continue
		}
		if !r.Admitted {
			if _, err := fmt.Fprintf(w, "%s: skipped (cooldown or already running)\n", r.RoomID); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s: checked %d, updated %d, unreachable %d\n", r.RoomID, r.Checked, r.Updated, r.Unreachable); err != nil {
			return err
		}
	}
	return nil
}
