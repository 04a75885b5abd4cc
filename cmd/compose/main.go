package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx := context.Background()

	app := &cli.Command{
		Name:  "compose",
		Usage: "Offline recording composition: mix and mux split-recorded sources per a layout",
		Commands: []*cli.Command{
			composeCommand(),
			inspectCommand(),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		slog.Error("failed to run", "error", err)
		os.Exit(1)
	}
}
