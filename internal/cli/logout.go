package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and discard session key material",
	Long: `Log out. The session and its cached key material are destroyed;
transient secrets are gone, permanent ones stay locked in the store
until the next login.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogout()
	},
}

func runLogout() error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	env.Box.Logout()
	if err := env.DestroySession(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	fmt.Println("✓ Logged out")
	return nil
}
