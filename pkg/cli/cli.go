package cli

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

// logConfig is shared by every command through the root flags
type logConfig struct {
	level  string
	format string
}

func Run(ctx context.Context, argv []string) *Error {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.Default().Warn("failed to load .env", "error", err)
	}

	var logCfg logConfig
	cmd := &cli.Command{
		Name:  "dashchat",
		Usage: "Conversational queries over a merchant dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Aliases:     []string{"l"},
				Usage:       "Log level (debug, info, warn, error)",
				Value:       "info",
				Sources:     cli.EnvVars("DASHCHAT_LOG_LEVEL"),
				Destination: &logCfg.level,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "Log format (console, json)",
				Value:       string(logging.FormatConsole),
				Sources:     cli.EnvVars("DASHCHAT_LOG_FORMAT"),
				Destination: &logCfg.format,
			},
		},
		Commands: []*cli.Command{
			chatCommand(&logCfg),
			askCommand(&logCfg),
			checkCommand(&logCfg),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// setupLogger installs the logger configured by the root flags and returns
// a context carrying it.
func setupLogger(ctx context.Context, cfg *logConfig) (context.Context, error) {
	format, err := logging.ParseFormat(cfg.format)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid log format")
	}
	logger := logging.New(cfg.level, os.Stderr, logging.WithFormat(format))
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}
