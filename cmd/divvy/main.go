// Command divvy runs the bill-splitting server and a few maintenance
// commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "divvy",
		Usage: "split restaurant bills from a receipt photo",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file to load before reading the environment",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			billsCommand(),
		},
		// With no subcommand, run the server.
		Action: runServe,
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "divvy:", err)
		os.Exit(1)
	}
}
