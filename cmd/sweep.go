package cmd

import (
	"fmt"
	"time"

	"crewbot/internal/store"

	"github.com/spf13/cobra"
)

func newSweepCmd(configPath *string) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close the sessions left open by a previous run",
		Long:  "Close every open session whose player has not been seen within the grace period, at the time the player was last seen. Run it while the tracker is stopped.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("grace") {
				grace = cfg.Store.RecoveryGrace
			}

			db, err := store.New(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			closed, err := db.RecoverOpenSessions(cmd.Context(), time.Now(), grace)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "closed %d sessions\n", closed)
			return err
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 0, "leave open the sessions seen within this period (default store.recovery_grace)")
	return cmd
}
