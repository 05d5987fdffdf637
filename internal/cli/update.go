package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Rebuild Packages/Sources catalogues and the Release hierarchy",
	Long: `update walks every component's binary-<arch>/ and source/
directories, rebuilds the Packages and Sources catalogues (plain, gzip
and bzip2 forms), and rewrites dists/<suite>/Release along with its
per-component Release files.`,
	RunE: runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return newRepository().Update(context.Background())
}
