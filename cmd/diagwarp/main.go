package main

import (
	"context"
	"fmt"
	"os"

	"github.com/samcharles93/diagwarp/internal/logger"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "diagwarp",
		Usage: "Dynamic time warping of point clouds on an accelerator",
		Flags: loggingFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg := LoadConfig()
			applyLoggingConfig(cmd, cfg)
			level := logLevel
			if debug {
				level = "debug"
			}
			log, err := logger.FromFlags(logFormat, level, cmd.Root().ErrWriter)
			if err != nil {
				return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			alignCmd(),
			verifyCmd(),
			benchmarkCmd(),
			batchCmd(),
			serveCmd(),
			devicesCmd(),
			versionCmd(),
		},
	}
}
