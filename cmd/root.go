package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/aquatrack/cmd/recompute"
	"github.com/tphakala/aquatrack/cmd/serve"
	"github.com/tphakala/aquatrack/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aquatrack",
		Short: "AquaTrack growth assimilation CLI",
	}

	rootCmd.PersistentFlags().BoolVar(&settings.Debug, "debug", viper.GetBool("debug"), "Enable debug output")
	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		serve.Command(settings),
		recompute.Command(settings),
	)

	return rootCmd
}
