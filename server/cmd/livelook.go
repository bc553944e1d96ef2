package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var livelookCmd = &cobra.Command{
	Use:   "livelook",
	Short: "Broadcast channel coordinator",
	Long: `livelook hands out exclusive broadcast slots on a fixed set of location
channels, frees slots that were never released, and issues media tokens.`,
	SilenceUsage: true,
}

func Execute() {
	if err := livelookCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.AutomaticEnv()
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func init() {
	cobra.OnInitialize(initConfig)
}
