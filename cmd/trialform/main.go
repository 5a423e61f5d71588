// Command trialform serves the field trial intake form. The fetch
// subcommand resolves a postcode and writes its forecast CSV without the web UI.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "trialform",
		Usage: "field trial intake form with weather enrichment",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"cfg"},
				Usage:   "optional YAML config file; environment variables override it",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			fetchCommand(),
		},
		Action: runServe,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("trialform failed", "error", err)
		os.Exit(1)
	}
}
