package cmd

import (
	"context"

	"github.com/THPTUHA/livelook/server/httpserver"
	"github.com/THPTUHA/livelook/server/httpserver/config"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the channel api",
}

// envBindings maps viper keys onto the environment variables deployments set.
var envBindings = map[string]string{
	"port":                "PORT",
	"log-level":           "LOG_LEVEL",
	"rtc-app-id":          "RTC_APP_ID",
	"rtc-app-certificate": "RTC_APP_CERTIFICATE",
}

func ServeFlagSet() *flag.FlagSet {
	cmdFlags := flag.NewFlagSet("serve flagset", flag.ContinueOnError)
	cmdFlags.String("file", config.DefaultFile, "Config file")
	cmdFlags.Int("port", config.DefaultPort, "Listening port")
	cmdFlags.String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	return cmdFlags
}

func init() {
	// RunE is assigned here rather than in the literal to break the
	// serveCmd -> serveRun -> serveCmd initialization cycle.
	serveCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	}
	livelookCmd.AddCommand(serveCmd)

	serveCmd.Flags().AddFlagSet(ServeFlagSet())
	viper.BindPFlags(serveCmd.Flags())
	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}
}

// loadConfig reads the config file and applies flag and environment
// overrides on top of it.
func loadConfig(v *viper.Viper, fileSet bool) (*config.Configs, error) {
	conf, err := config.Get(v.GetString("file"), fileSet)
	if err != nil {
		return nil, err
	}
	if v.IsSet("port") {
		conf.HTTPServer.Port = v.GetInt("port")
	}
	if v.IsSet("log-level") {
		conf.Log.Level = v.GetString("log-level")
	}
	if id := v.GetString("rtc-app-id"); id != "" {
		conf.RTC.AppID = id
	}
	if cert := v.GetString("rtc-app-certificate"); cert != "" {
		conf.RTC.AppCertificate = cert
	}
	return conf, nil
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf, err := loadConfig(viper.GetViper(), serveCmd.Flags().Changed("file"))
	if err != nil {
		return err
	}
	server, err := httpserver.NewHTTPServer(ctx, conf)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
