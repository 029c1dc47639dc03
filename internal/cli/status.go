package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

func runStatus() error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	fmt.Printf("Store:    %s\n", cfg.StorePath)
	fmt.Printf("Sessions: %s\n", cfg.SessionDir)

	if env.User == nil {
		fmt.Println("User:     (not logged in)")
		return nil
	}
	fmt.Printf("User:     %s\n", env.User.Name)

	keys, err := env.Box.Keys()
	if err != nil {
		return fmt.Errorf("failed to list secrets: %w", err)
	}
	fmt.Printf("Secrets:  %d\n", len(keys))
	return nil
}
