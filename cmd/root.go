// Package cmd provides the casefolio command-line interface.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--config, --log-level, per-command flags)
//  2. CASEFOLIO_CONFIG_FILE environment variable (custom config file path)
//  3. Individual environment variables (CASEFOLIO_SERVER_PORT and friends)
//  4. .casefolio.yml in the current directory
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "casefolio",
	Short: "Case-study content server with templates and conflict resolution",
	Long: `Casefolio serves a case-study content API backed by SQLite, with
document templates, variable substitution, and conflict resolution for
concurrent edits.

Quick start:
  casefolio serve                         Start the API server
  casefolio render <template> [vars.yml]  Render a template to stdout
  casefolio variables <template>          List a template's variables
  casefolio validate <template>           Validate a template file`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .casefolio.yml, can also use CASEFOLIO_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("CASEFOLIO_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".casefolio")
	}

	viper.SetEnvPrefix("CASEFOLIO")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; defaults and env vars still apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
