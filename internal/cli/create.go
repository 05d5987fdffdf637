package cli

import "github.com/spf13/cobra"

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Lay out an empty repository tree",
	Long: `create provisions dists/<suite>/<component>/binary-<arch>/ and
.../source/ for every component and architecture named in the config.
Per-section subdirectories are created on demand by add.`,
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	return newRepository().Create()
}
