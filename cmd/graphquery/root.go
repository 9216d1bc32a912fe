// Package graphquery implements the graphquery command line.
package graphquery

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "graphquery",
		Short: "graphquery: ask questions of a GraphRAG index",
		Long: `graphquery answers natural-language questions against a pre-built
GraphRAG-style index (entities, relationships, communities, community reports
and text units stored as parquet tables).

Each question runs through basic, local and global search. Every answer is
saved with its supporting context under <root>/queries/query_<timestamp>_<mode>/.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.graphquery.yaml or $HOME/.graphquery.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("root", ".", "project root holding the index and the queries folder")

	// Bind flags to viper
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("project.root", rootCmd.PersistentFlags().Lookup("root"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".graphquery")
	}

	// GRAPHQUERY_QUERY_COMMUNITY_LEVEL sets query.community_level, and so on
	viper.SetEnvPrefix("graphquery")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
