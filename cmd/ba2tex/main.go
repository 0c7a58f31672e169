// Command ba2tex lists, inspects and extracts textures from BA2 archives.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	argConfig   string
	argLogLevel string
)

var rootCmd = &cobra.Command{
	Use:               "ba2tex",
	Short:             "Extract DDS textures from BA2 archives",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&argConfig, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&argLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

// setup loads the config file into flags that were not set explicitly and
// configures logging.
func setup(cmd *cobra.Command, args []string) error {
	if argConfig != "" {
		cfg, err := loadConfig(argConfig)
		if err != nil {
			return err
		}
		if err := cfg.apply(cmd.Flags()); err != nil {
			return err
		}
	}

	level, err := zerolog.ParseLevel(argLogLevel)
	if err != nil {
		return err
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("ba2tex failed")
		os.Exit(1)
	}
}
