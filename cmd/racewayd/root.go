package main

import (
	"io"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/sirupsen/logrus"
)

// rootConfig holds flags shared by every subcommand.
type rootConfig struct {
	stdout io.Writer
	stderr io.Writer

	LogLevel string `ff:" short: l | long: log-level | default: info | placeholder: LEVEL | usage: log level: debug, info, warn, error "`

	log *logrus.Logger
}

func (cfg *rootConfig) registerBaseFlags(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log-level",
		Value:       ffval.NewEnum(&cfg.LogLevel, "debug", "info", "warn", "error"),
		Usage:       "log level: debug, info, warn, error",
		Placeholder: "LEVEL",
	})
}

// newLogger builds the logrus logger every subcommand runs with, once flags
// are parsed and rootConfig.LogLevel is known.
func (cfg *rootConfig) newLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(cfg.stderr)
	cfg.log = log
	return log, nil
}
