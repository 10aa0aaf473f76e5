package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bytemomo/moray/internal/config"
)

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "moray",
	Short: "moray - red team target ingestion and attack orchestration",
	Long: `moray ingests opposing teams' build packages into a synchronized
targets repository, dispatches automated exploit runs through the attack
executor, submits captured flags to the challenge platform, and relays
build pipeline status to observers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = log.InfoLevel
		}
		log.SetLevel(level)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "moray.yml", "Path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(attackCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(scoreboardCmd)
	rootCmd.AddCommand(challengesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
