package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bytemomo/moray/internal/executor"
)

var attackCmd = &cobra.Command{
	Use:   "attack",
	Short: "Run the attack executor against a target",
}

var attackTargetCmd = &cobra.Command{
	Use:   "target <team>",
	Short: "(Re)run the automated attack suite on the specified target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		team := args[0]

		p := newPlatform()
		if err := p.challenges.Refresh(cmd.Context()); err != nil {
			log.WithError(err).Warn("Could not refresh challenge cache; submissions may miss")
		}

		res, err := newAttackClient(p).RunTarget(cmd.Context(), team)
		if err != nil {
			return err
		}
		return printAttackResult(team, res)
	},
}

var attackScriptCmd = &cobra.Command{
	Use:   "script <team> <script-url>",
	Short: "Run a custom attack script on the specified target",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		team, scriptURL := args[0], args[1]

		p := newPlatform()
		if err := p.challenges.Refresh(cmd.Context()); err != nil {
			log.WithError(err).Warn("Could not refresh challenge cache; submissions may miss")
		}

		res, err := newAttackClient(p).RunScript(cmd.Context(), team, scriptURL)
		if err != nil {
			return err
		}
		return printAttackResult(team, res)
	},
}

func init() {
	attackCmd.AddCommand(attackTargetCmd)
	attackCmd.AddCommand(attackScriptCmd)
}

// printAttackResult prints the alert summary and writes the full transcript
// next to the working directory.
func printAttackResult(team string, res executor.Result) error {
	fmt.Printf("Attack output for %s\n", team)
	if len(res.Alerts) == 0 {
		fmt.Println("- No vulnerabilities detected.")
	}
	for _, a := range res.Alerts {
		fmt.Println("- " + a)
	}

	logPath := filepath.Join(".", fmt.Sprintf("attack-%s.log", team))
	if err := os.WriteFile(logPath, []byte(res.Transcript), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	fmt.Printf("Transcript written to %s\n", logPath)
	return nil
}
