package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bytemomo/moray/internal/flags"
)

var submitCmd = &cobra.Command{
	Use:   "submit <challenge-id> <flag>",
	Short: "Wrap and submit a flag to the challenge platform",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("challenge-id must be numeric: %w", err)
		}
		flag := args[1]

		p := newPlatform()
		if err := p.challenges.Refresh(cmd.Context()); err != nil {
			return err
		}

		chall, ok := p.challenges.FindByID(id)
		if !ok {
			return fmt.Errorf("no challenge with id %d", id)
		}

		wrapped := flags.WrapFlagForChallenge(chall.Name, flag)
		res, err := p.client.SubmitFlag(cmd.Context(), id, wrapped)
		if err != nil {
			return err
		}

		fmt.Printf("Flag submission for %s\n", chall.Name)
		fmt.Printf("  Flag:    %s\n", wrapped)
		fmt.Printf("  Status:  %s\n", res.Status)
		fmt.Printf("  Message: %s\n", res.Message)
		return nil
	},
}

var scoreboardCmd = &cobra.Command{
	Use:   "scoreboard",
	Short: "Show the current scoreboard top entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPlatform()
		if err := p.scores.Refresh(cmd.Context(), true); err != nil {
			return err
		}

		for _, team := range p.scores.Top(5) {
			fmt.Printf("%d. %s - %d points\n", team.Rank, team.Name, team.Points)
		}
		fmt.Printf("Fetched %s\n", p.scores.LastUpdated().Format("2006-01-02 15:04:05"))
		return nil
	},
}

var challengesCmd = &cobra.Command{
	Use:   "challenges",
	Short: "List unsolved challenges sorted by solves and value",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPlatform()
		if err := p.challenges.Refresh(cmd.Context()); err != nil {
			return err
		}

		for i, c := range p.challenges.Unsolved() {
			fmt.Printf("%d. %s (%d pts): solved by %d\n", i+1, c.Name, c.Value, c.Solves)
		}
		return nil
	},
}
