package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/samcharles93/diagwarp/internal/logger"
	"github.com/samcharles93/diagwarp/pkg/device"
	"github.com/urfave/cli/v3"
)

func devicesCmd() *cli.Command {
	var jsonOut bool

	return &cli.Command{
		Name:  "devices",
		Usage: "List the execution backends compiled into this build",
		Flags: append(commonDeviceFlags(),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print properties as JSON",
				Destination: &jsonOut,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyDeviceConfig(cmd, LoadConfig())

			var props []device.Properties
			for _, name := range strings.Split(device.Available(), ",") {
				dev, err := device.Open(name, device.Options{Workers: int(workers), MemoryLimit: memoryLimit})
				if err != nil {
					log.Warn("backend unavailable", "backend", name, "error", err)
					continue
				}
				props = append(props, dev.Properties())
				_ = dev.Close()
			}

			w := cmd.Root().Writer
			if jsonOut {
				return writeJSON(w, "", props)
			}
			for _, p := range props {
				_, _ = fmt.Fprintf(w, "%s\n", p.Name)
				_, _ = fmt.Fprintf(w, "  workers:               %d\n", p.Workers)
				_, _ = fmt.Fprintf(w, "  max threads per block: %d\n", p.MaxThreadsPerBlock)
				if p.MemoryLimit > 0 {
					_, _ = fmt.Fprintf(w, "  memory limit:          %d bytes\n", p.MemoryLimit)
				} else {
					_, _ = fmt.Fprintf(w, "  memory limit:          unlimited\n")
				}
				if len(p.Features) > 0 {
					_, _ = fmt.Fprintf(w, "  features:              %s\n", strings.Join(p.Features, " "))
				}
			}
			return nil
		},
	}
}
