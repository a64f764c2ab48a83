// Command mvlcdaq drives one MVLC crate: run or replay an acquisition, and
// query a running instance's counters over the remote control port. The
// run command compiles and uploads no readout stack; it prepares the
// controller with an empty upload program.
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"
)

var app *cli.App

func init() {
	app = cli.NewApp()
	app.Name = "mvlcdaq"
	app.Usage = "MVLC crate readout and analysis"
	app.Flags = []cli.Flag{
		verbosityFlag,
	}
	app.Commands = []cli.Command{
		runCommand,
		replayCommand,
		statsCommand,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mvlcdaq:", err)
		os.Exit(1)
	}
}
