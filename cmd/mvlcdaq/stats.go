package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/mesycraft/mvlcdaq/internal/remote"
)

var statsCommand = cli.Command{
	Name:   "stats",
	Usage:  "dump a running instance's system state and DAQ counters",
	Flags:  []cli.Flag{remoteAddrFlag},
	Action: statsAction,
}

func statsAction(ctx *cli.Context) error {
	c, err := remote.Dial(ctx.String("remote"))
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	defer c.Close()

	state, err := c.GetSystemState()
	if err != nil {
		return fmt.Errorf("stats: getSystemState: %w", err)
	}
	daq, err := c.GetDAQStats()
	if err != nil {
		return fmt.Errorf("stats: getDAQStats: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"run state", state.RunState})
	table.Append([]string{"run id", state.RunID})
	table.Append([]string{"controller connected", strconv.FormatBool(state.ControllerConnected)})
	table.Append([]string{"buffers read", strconv.FormatUint(daq.BuffersRead, 10)})
	table.Append([]string{"bytes read", strconv.FormatUint(daq.BytesRead, 10)})
	table.Append([]string{"events built", strconv.FormatUint(daq.EventsBuilt, 10)})
	table.Append([]string{"exceptions", strconv.FormatUint(daq.Exceptions, 10)})
	table.Render()
	return nil
}
