// Command cdnctl uploads to the origin, downloads from file servers, sends
// heartbeats and asks the load balancer where a request would go.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cdnctl",
		Usage: "operate an edge CDN cluster",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "deadline for each operation",
				EnvVars: []string{"CDNCTL_TIMEOUT"},
				Value:   defaultTimeout,
			},
			&cli.IntFlag{
				Name:    "chunk-size",
				Usage:   "upload chunk size in bytes",
				EnvVars: []string{"CHUNK_SIZE"},
				Value:   1024 * 1024,
			},
		},
		Commands: []*cli.Command{
			uploadCommand(),
			downloadCommand(),
			heartbeatCommand(),
			routeCommand(),
		},
	}
}
