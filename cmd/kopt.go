package cmd

import (
	"fmt"
	"log"

	"github.com/metal-toolbox/osie-runner/internal/app"
	"github.com/metal-toolbox/osie-runner/internal/cmdline"
	"github.com/spf13/cobra"
)

var (
	cmdlineFile string
)

var cmdKopt = &cobra.Command{
	Use:   "kopt <key>",
	Short: "Print the value of a key=value kernel boot parameter",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		kopts, err := cmdline.Read(cmdlineFile)
		if err != nil {
			log.Fatal(err)
		}

		value, err := kopts.Require(args[0])
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(value)
	},
}

func init() {
	cmdKopt.PersistentFlags().StringVar(&cmdlineFile, "cmdline", app.DefaultCmdlineFile, "The file to read boot parameters from")

	rootCmd.AddCommand(cmdKopt)
}
