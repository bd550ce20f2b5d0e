package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"solarcore/internal/db"
	"solarcore/internal/store"
)

func NewSeedCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load rooms and canonical devices from an inventory file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Log, cmd.ErrOrStderr())

			inv, err := store.LoadInventory(file)
			if err != nil {
				return err
			}
			gdb, err := db.Init(cfg.Database, cfg.Log.Level, logger)
			if err != nil {
				return err
			}
			if sqlDB, err := gdb.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := store.Seed(cmd.Context(), gdb, inv, cfg.Account.ID); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rooms and %d canonical devices\n", len(inv.Rooms), len(inv.Devices))
			return err
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&file, "file", "f", "inventory.yaml", "inventory file")

	return cmd
}
