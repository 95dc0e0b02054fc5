// Package signalcli provides common CLI utilities and boilerplate for building
// the signaling relay's command-line applications and Lambda functions.
//
// This package includes standardized service configuration, common CLI flags,
// structured logging setup, CloudWatch metrics and build information tracking.
package signalcli

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func App(service Service, action cli.ActionFunc, flags ...cli.Flag) *cli.App {
	return &cli.App{
		Name:                 service.Name,
		Usage:                fmt.Sprintf("%v signaling service", service.Name),
		Version:              service.Version,
		EnableBashCompletion: true,
		Before:               InitCommonOpts,
		Action:               action,
		Flags:                flags,
	}
}

// InitCommonOpts applies CommonOpts after flag parsing. An unparseable
// --log-level is rejected rather than silently falling back to debug output.
func InitCommonOpts(c *cli.Context) error {
	level, err := zerolog.ParseLevel(CommonOpts.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", CommonOpts.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func CommitHash() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
		return info.Main.Version
	}
	return "unknown"
}
