package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openhtm/htmserve/cmd/cli/commands"
	"github.com/openhtm/htmserve/pkg/constants"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "htmserve-cli",
		Short: "HTM predictive model server CLI",
		Long: `A command-line interface for managing predictive models on a running
model server: create models, stream rows, inspect state, reset and delete.`,
		Version: constants.AppVersion,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.htmserve.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("server", fmt.Sprintf("http://localhost:%d", constants.DefaultPort), "model server base URL")
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(commands.NewCreateCmd())
	rootCmd.AddCommand(commands.NewListCmd())
	rootCmd.AddCommand(commands.NewGetCmd())
	rootCmd.AddCommand(commands.NewRunCmd())
	rootCmd.AddCommand(commands.NewResetCmd())
	rootCmd.AddCommand(commands.NewDeleteCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".htmserve")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HTMSERVE")

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
