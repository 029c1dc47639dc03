package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securebox/securebox/internal/crypto"
)

var initCmd = &cobra.Command{
	Use:   "init <username>",
	Short: "Create a new user",
	Long: `Create a new user in the secret store. The password protects the user's
key hierarchy; losing it destroys every stored secret, since the only
recovery path is a key reset.

Example:
  securebox init alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(args[0])
	},
}

func runInit(username string) error {
	password, err := PromptPasswordConfirm("Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := crypto.HashPassword(password, cfg.KDF)
	if err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if _, err := env.Store.CreateUser(username, hash); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("✓ User '%s' created. Run 'securebox login %s' to start.\n", username, username)
	return nil
}
