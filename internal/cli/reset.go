package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securebox/securebox/internal/crypto"
)

var resetForce bool

var resetKeysCmd = &cobra.Command{
	Use:   "reset-keys",
	Short: "Reset the key hierarchy, destroying every stored secret",
	Long: `Mint a fresh master key for the logged-in user. Every stored secret and
its wrapped keys are destroyed in the same transaction; there is no way
back. Use this after a password change made the old secrets
unrecoverable anyway.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResetKeys()
	},
}

func init() {
	resetKeysCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "skip confirmation")
}

func runResetKeys() error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.RequireUser()
	if err != nil {
		return err
	}

	if !resetForce {
		ok, err := PromptConfirm(
			fmt.Sprintf("Destroy all secrets of '%s' and mint fresh keys?", user.Name), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	password, err := PromptPassword("Password: ")
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(user.PasswordHash, password) {
		return fmt.Errorf("invalid credentials")
	}

	if err := env.Box.ResetKeys(password); err != nil {
		return fmt.Errorf("failed to reset keys: %w", err)
	}

	fmt.Println("✓ Key hierarchy reset. All previous secrets are gone.")
	return nil
}
