package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listValues bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret names",
	Long: `List every name with a live entry in either tier. Listing heals corrupt
entries away instead of reporting them.

Example:
  securebox list
  securebox list --values   # show values too (security warning)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList()
	},
}

func init() {
	listCmd.Flags().BoolVar(&listValues, "values", false, "show values alongside names")
}

func runList() error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if listValues {
		fmt.Println("⚠️  WARNING: Displaying secrets in terminal")
		return env.Box.Items(func(name string, value any) bool {
			fmt.Printf("%s: %v\n", name, value)
			return true
		})
	}

	keys, err := env.Box.Keys()
	if err != nil {
		return fmt.Errorf("failed to list secrets: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("No secrets stored.")
		return nil
	}
	for _, name := range keys {
		fmt.Println(name)
	}
	return nil
}
