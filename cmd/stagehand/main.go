package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/stagehand-dev/stagehand/log"
	"github.com/stagehand-dev/stagehand/server"
)

func main() {
	cmd := &cli.Command{
		Name:  "stagehand",
		Usage: "deployment orchestration bot",
		Commands: []*cli.Command{
			server.Command(),
		},
	}

	ctx := context.Background()
	logger := log.New("stagehand")
	ctx = log.IntoContext(ctx, logger)

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}
}
