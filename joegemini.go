package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/joegemini/cmd"
)

func main() {
	app := &cli.App{
		Name:    "joegemini",
		Usage:   "Autonomous GitHub bot that answers mentions and ships fixes with Gemini",
		Version: cmd.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.ReplayCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
