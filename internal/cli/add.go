package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/archflux/aptrepo/deb"
)

var (
	addComponent string
	addLink      bool
)

var addCmd = &cobra.Command{
	Use:   "add <file-or-glob>...",
	Short: "Stage .deb and .dsc files into a component",
	Long: `add copies (or, with --link, hard-links) one or more .deb or .dsc
files, or glob patterns matching them, into the component's canonical
binary-<arch>/<section>/ or source/<section>/ directory, along with a
.dsc's referenced original and diff archives. A file that can't be staged
is logged and skipped; it never aborts the rest of the batch. Run update
afterwards to regenerate the Packages/Sources catalogues.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addComponent, "component", "main", "component to add into")
	addCmd.Flags().BoolVar(&addLink, "link", false, "hard-link files into place instead of copying")
}

func runAdd(cmd *cobra.Command, args []string) error {
	repo := newRepository()
	results := repo.Add(addComponent, deb.AddOptions{Link: addLink}, args...)

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", res.Path, res.Err)
			continue
		}
		fmt.Printf("staged %s (%s)\n", res.Name, res.Path)
	}
	if failed > 0 && failed == len(results) {
		return fmt.Errorf("add: all %d item(s) failed", failed)
	}
	return nil
}
