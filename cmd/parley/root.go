package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Multi-agent conversation server",
	Long: `Parley serves multi-agent conversations: one user message fans out to one
or more AI agents according to the selected mode (collaborative, parallel,
expert-council, debate), and their responses stream back as newline-delimited
JSON events.

Configuration is read from a config file (--config, ./parley.yaml or
~/.config/parley/parley.yaml), overridable via PARLEY_* environment
variables and flags.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("parley")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/parley")
		}
	}

	viper.SetEnvPrefix("PARLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Missing config files are fine; everything has a default.
	_ = viper.ReadInConfig()
}
