package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesense/pkg/config"
)

// configureLogger builds the logger from cfg and writes it to stderr.
// --log-level takes precedence over the config level. Without the flag and
// without a config file the logger is silent so log lines do not mix with
// the status display.
func configureLogger(cmd *cobra.Command, cfg *config.Config, fromFile bool) (*logrus.Logger, error) {
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())

	levelStr, _ := cmd.Flags().GetString("log-level")
	switch {
	case levelStr != "":
		level, err := config.ParseLevel(levelStr)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	case !fromFile:
		// Default to panic level (essentially silent for normal operations)
		logger.SetLevel(logrus.PanicLevel)
	}

	return logger, nil
}
