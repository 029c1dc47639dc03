package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securebox/securebox/internal/securebox"
)

var deleteTier string

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a secret",
	Long: `Delete a secret by name. The --tier flag restricts which tier is
searched; 'all' removes the name from every tier. Deleting an absent
name succeeds silently.

Example:
  securebox delete github-token
  securebox delete scratch --tier all`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDelete(args[0])
	},
}

func init() {
	deleteCmd.Flags().StringVar(&deleteTier, "tier", "all", "storage tier policy")
}

func runDelete(name string) error {
	policy, err := securebox.ParsePolicy(deleteTier)
	if err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Box.Delete(name, policy); err != nil {
		return fmt.Errorf("failed to delete '%s': %w", name, err)
	}

	fmt.Printf("✓ Deleted '%s'\n", name)
	return nil
}
