package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/mesycraft/mvlcdaq/internal/analysis"
	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/daqrun"
	"github.com/mesycraft/mvlcdaq/internal/readout"
	"github.com/mesycraft/mvlcdaq/internal/remote"
	"github.com/mesycraft/mvlcdaq/internal/streamparser"
	"github.com/mesycraft/mvlcdaq/internal/transport"
	"github.com/mesycraft/mvlcdaq/internal/transport/eth"
	"github.com/mesycraft/mvlcdaq/internal/transport/usb"
)

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "acquire live data from a connected MVLC and archive it",
	ArgsUsage: "<archive-path>",
	Flags: []cli.Flag{
		transportFlag,
		ethHostFlag,
		crateIDFlag,
		listfileBaseFlag,
		remoteAddrFlag,
		snoopDepthFlag,
	},
	Action: runAction,
}

// singleModuleLayout is the default crate layout used when no VME
// configuration has been loaded: one event, one module, a block-read
// dynamic part and no prefix/suffix words. Loading a real multi-module
// configuration is out of scope (spec.md Non-goals: no VME-script text
// parser); callers embedding daqrun directly can supply any layout.
func singleModuleLayout() streamparser.CrateLayout {
	return streamparser.CrateLayout{Events: []streamparser.EventLayout{
		{Modules: []streamparser.ModuleLayout{{HasDynamic: true}}},
	}}
}

func runAction(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return cli.NewExitError("run: missing <archive-path>", 1)
	}

	log := clog.NewLogger("mvlcdaq")
	log.LogMode(ctx.GlobalBool("verbose"))

	kind, ctrl, err := dialController(ctx, log)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	graph := analysis.NewGraph(time.Now().UnixNano())
	if err := graph.Build(); err != nil {
		return fmt.Errorf("run: build analysis graph: %w", err)
	}

	cfg := daqrun.Config{
		CrateID:      uint8(ctx.Int("crate-id")),
		Kind:         kind,
		Layout:       singleModuleLayout(),
		SnoopDepth:   ctx.Int("snoop-depth"),
		ArchivePath:  path,
		ListfileBase: ctx.String("listfile-name"),
	}

	r, err := daqrun.New(context.Background(), cfg, graph, 16, 1<<20, log)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	worker := readout.NewWorker(ctrl, r.Pool, r.Archive, r.Snoop(), log)
	if err := worker.Prepare(context.Background(), nil, nil, readout.StartScripts{}); err != nil {
		return fmt.Errorf("run: prepare: %w", err)
	}

	r.StartStreamWorker()
	r.StartReadout(worker, readout.StopScripts{})

	remoteAddr := ctx.String("remote")
	rc, err := remote.Listen(remoteAddr, &daqrun.RemoteState{Run: r})
	if err != nil {
		return fmt.Errorf("run: remote control: %w", err)
	}
	defer rc.Close()
	fmt.Printf("mvlcdaq: run %s started, remote control on %s\n", r.ID, remoteAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("mvlcdaq: stopping...")
	return r.Stop()
}

func dialController(ctx *cli.Context, log clog.Clog) (transport.Kind, transport.Controller, error) {
	switch ctx.String("transport") {
	case "usb":
		t, err := usb.Open(log)
		if err != nil {
			return 0, nil, fmt.Errorf("run: open USB: %w", err)
		}
		return transport.KindUSB, t, nil
	case "eth":
		host := ctx.String("eth-host")
		if host == "" {
			return 0, nil, cli.NewExitError("run: --eth-host is required for transport=eth", 1)
		}
		t, err := eth.Dial(host, log)
		if err != nil {
			return 0, nil, fmt.Errorf("run: dial %s: %w", host, err)
		}
		return transport.KindEthernet, t, nil
	default:
		return 0, nil, cli.NewExitError("run: unknown --transport "+ctx.String("transport"), 1)
	}
}
