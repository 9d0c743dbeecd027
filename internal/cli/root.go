// Package cli implements the agstage command line.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sprite-ai/agstage/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "agstage",
	Short: "Stage agent file rewrites for human review",
	Long: `agstage sits between a coding agent and your files. Every full-file
rewrite the agent proposes is staged to a scratch file, shown to you as a
diff, and written to the original only when you accept it.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/agstage/config.yaml)")
	rootCmd.PersistentFlags().StringP("project", "C", "", "project root (default is the current directory)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("project.root", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// AGSTAGE_REVIEW_PRESENTER for review.presenter
	viper.SetEnvPrefix("AGSTAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}
