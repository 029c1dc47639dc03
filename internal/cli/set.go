package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securebox/securebox/internal/securebox"
)

var setTier string

var setCmd = &cobra.Command{
	Use:   "set <name> [value]",
	Short: "Store a secret",
	Long: `Store a secret under the given name. The value is taken from the second
argument or prompted for without echo.

The --tier flag selects where the secret lives:
  transient                  session only; evicts any permanent copy
  permanent                  database only; evicts any transient copy
  transient-then-permanent   update in place, create in the session
  permanent-then-transient   update in place, create in the database

Without --tier, an existing entry is updated where it lives and a new
one is created in the database.

Example:
  securebox set github-token                  # prompt for the value
  securebox set api-key s3cr3t --tier transient`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 2 {
			value = args[1]
		}
		return runSet(args[0], value)
	},
}

func init() {
	setCmd.Flags().StringVar(&setTier, "tier", "permanent-then-transient", "storage tier policy")
}

func runSet(name, value string) error {
	policy, err := securebox.ParsePolicy(setTier)
	if err != nil {
		return err
	}

	if value == "" {
		value, err = PromptPassword("Value: ")
		if err != nil {
			return err
		}
		if value == "" {
			return fmt.Errorf("value must not be empty")
		}
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if _, err := env.RequireUser(); err != nil {
		return err
	}
	if err := env.Box.Store(name, value, policy); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}

	fmt.Printf("✓ Stored '%s'\n", name)
	return nil
}
