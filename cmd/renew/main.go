package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamup/renew-agent/internal/config"
)

var (
	// Version information
	version = "0.1.0"

	cfgFile string
	v       = config.NewViper()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "renew",
	Short: "Renew Agent - Automated dashboard resource renewal",
	Long: `Renew Agent logs into a hosting dashboard for each configured account and
renews its resource, clicking through the embedded human-verification
challenge with synthesized pointer input over the Chrome DevTools Protocol.

Accounts are read from USERS_JSON and an optional egress proxy from HTTP_PROXY.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or $HOME/.renew/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")

	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}
