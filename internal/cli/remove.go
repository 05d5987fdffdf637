package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archflux/aptrepo/deb"
)

var (
	removeComponent string
	removeDryRun    bool
)

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a package or source and its transitive siblings",
	Long: `remove deletes a staged package or source and, transitively,
every other file belonging to the same source: sibling binaries built
from it and its own .dsc plus original/diff archives. Run update
afterwards to regenerate the Packages/Sources catalogues.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().StringVar(&removeComponent, "component", "main", "component to remove from")
	removeCmd.Flags().BoolVar(&removeDryRun, "dry-run", false, "report what would be removed without touching the filesystem")
}

func runRemove(cmd *cobra.Command, args []string) error {
	repo := newRepository()
	removed, err := repo.Remove(removeComponent, args[0], deb.RemoveOptions{DryRun: removeDryRun})
	if err != nil {
		return err
	}
	for _, path := range removed {
		fmt.Println(path)
	}
	return nil
}
