package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securebox/securebox/internal/crypto"
)

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and unlock the key hierarchy",
	Long: `Log in as the given user. On success the master key is unlocked and
cached in the session, encrypted under key material split between the
session store and the cookie jar.

If the stored master key no longer unwraps (for example after an
out-of-band password change), the key hierarchy is reset and every
stored secret is destroyed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogin(args[0])
	},
}

func runLogin(username string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.Store.GetUser(username)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	password, err := PromptPassword("Password: ")
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(user.PasswordHash, password) {
		return fmt.Errorf("invalid credentials")
	}

	env.SetUser(user)
	if err := env.Box.Login(password); err != nil {
		return fmt.Errorf("failed to unlock keys: %w", err)
	}

	fmt.Printf("✓ Logged in as '%s'\n", username)
	return nil
}
