package cmd

import (
	"crewbot/internal/common"
	"crewbot/internal/config"

	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "crewbot",
		Short:         "Crew presence tracker and discord bot",
		Long:          "crewbot polls the online rosters of every region, keeps the play sessions and names of the crew in SQLite and shows who is online on discord.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default $CREWBOT_CONFIG or ./config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(&configPath),
		newSweepCmd(&configPath),
	)

	return rootCmd
}

// Load the configuration and set up logging from it
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	common.InitLogging(cfg.Log.Level, cfg.Log.Format, nil)
	return cfg, nil
}
