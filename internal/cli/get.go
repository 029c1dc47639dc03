package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/securebox/securebox/internal/clipboard"
	"github.com/securebox/securebox/internal/securebox"
)

var (
	getTier string
	getCopy bool
)

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Retrieve a secret",
	Long: `Retrieve a secret by name. Absent, undecryptable, and locked entries all
read as not found.

By default the value is printed; --copy puts it on the clipboard instead
and clears it after the configured timeout.

Example:
  securebox get github-token
  securebox get github-token --copy
  securebox get scratch --tier transient`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(args[0])
	},
}

func init() {
	getCmd.Flags().StringVar(&getTier, "tier", "transient-then-permanent", "storage tier policy")
	getCmd.Flags().BoolVar(&getCopy, "copy", false, "copy to clipboard instead of printing")
}

func runGet(name string) error {
	policy, err := securebox.ParsePolicy(getTier)
	if err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	value, err := env.Box.Fetch(name, policy)
	if err != nil {
		return fmt.Errorf("failed to fetch '%s': %w", name, err)
	}

	if getCopy {
		if !clipboard.IsAvailable() {
			return fmt.Errorf("clipboard not available, rerun without --copy")
		}
		if err := clipboard.CopyWithTimeout(fmt.Sprint(value), cfg.ClipboardTTL); err != nil {
			return err
		}
		fmt.Printf("✓ '%s' copied to clipboard (clears in %v)\n", name, cfg.ClipboardTTL)
		return nil
	}

	fmt.Println(value)
	return nil
}
