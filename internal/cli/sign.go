package cli

import "github.com/spf13/cobra"

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Write a detached signature for the suite Release file",
	Long: `sign produces dists/<suite>/Release.gpg from the signing key in
config (or APTREPO_SIGNING_KEY). It fails immediately rather than leaving
a partially-signed suite.`,
	RunE: runSign,
}

func runSign(cmd *cobra.Command, args []string) error {
	return newRepository().Sign()
}
