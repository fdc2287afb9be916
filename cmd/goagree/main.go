package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/icon-project/goagree/cmd/cli"
)

var (
	version = "unknown"
	build   = "unknown"
)

func main() {
	rootCmd, rootVc := cli.NewCommand(nil, nil, "goagree", "BFT agreement among in-process validators")
	rootCmd.SilenceUsage = true

	cli.NewRunCmd(rootCmd, rootVc)
	cli.NewKeyStoreCmd(rootCmd, rootVc)
	cli.NewAPICmds(rootCmd, rootVc)
	cli.NewGenerateMarkdownCommand(rootCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print goagree version",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "goagree version", version, build)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
