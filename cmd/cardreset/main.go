package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gentam/cardreset"
)

var (
	cfgPath string
	cfg     cardreset.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:          "cardreset",
	Short:        "Wipe or patch supported memory cards over SPI",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = cardreset.LoadConfig(cfgPath); err != nil {
			return err
		}
		log, err = newLogger(cfg.LogLevel)
		return err
	},
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	c := zap.NewDevelopmentConfig()
	c.Level = zap.NewAtomicLevelAt(lvl)
	return c.Build()
}

// loadAllProfiles returns the builtin profiles plus any patch profiles
// shipped as a YAML file, in detection order.
func loadAllProfiles() ([]*cardreset.CardProfile, error) {
	profiles := cardreset.BuiltinProfiles()
	if cfg.ProfileFile != "" {
		extra, err := cardreset.LoadProfiles(cfg.ProfileFile)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, extra...)
	}
	return profiles, nil
}

func newRegistry() (*cardreset.Registry, error) {
	profiles, err := loadAllProfiles()
	if err != nil {
		return nil, err
	}
	return cardreset.NewRegistry(profiles, log)
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file")
	rootCmd.AddCommand(runCmd, resetCmd, detectCmd, infoCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
