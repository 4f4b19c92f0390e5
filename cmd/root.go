package cmd

import (
	"log"

	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
	trace   bool
)

var rootCmd = &cobra.Command{
	Use:   model.AppName,
	Short: "Reconcile this machine to the provisioning state served by hegel",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func logLevel() int {
	switch {
	case trace:
		return model.LogLevelTrace
	case debug:
		return model.LogLevelDebug
	default:
		return model.LogLevelInfo
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file (default is to read configuration from env variables)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&trace, "trace", "", false, "enable trace logging")
}
