package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/mesycraft/mvlcdaq/internal/analysis"
	"github.com/mesycraft/mvlcdaq/internal/archive"
	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/daqrun"
	"github.com/mesycraft/mvlcdaq/internal/readout"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

var replayCommand = cli.Command{
	Name:      "replay",
	Usage:     "replay an archived listfile through the analysis graph",
	ArgsUsage: "<archive-path>",
	Flags: []cli.Flag{
		listfileBaseFlag,
		crateIDFlag,
	},
	Action: replayAction,
}

func replayAction(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return cli.NewExitError("replay: missing <archive-path>", 1)
	}

	log := clog.NewLogger("mvlcdaq-replay")
	log.LogMode(ctx.GlobalBool("verbose"))

	entryName := ctx.String("listfile-name")
	rd, closer, err := archive.OpenListfile(path, entryName)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer closer.Close()

	kind := transport.KindUSB
	if rd.Magic() == "MVLC_ETH" {
		kind = transport.KindEthernet
	}

	graph := analysis.NewGraph(1)
	if err := graph.Build(); err != nil {
		return fmt.Errorf("replay: build analysis graph: %w", err)
	}

	outPath := filepath.Join(filepath.Dir(path), "replay-"+filepath.Base(path))
	cfg := daqrun.Config{
		CrateID:      uint8(ctx.Int("crate-id")),
		Kind:         kind,
		Layout:       singleModuleLayout(),
		SnoopDepth:   16,
		ArchivePath:  outPath,
		ListfileBase: entryName,
	}

	r, err := daqrun.New(context.Background(), cfg, graph, 16, 1<<20, log)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	r.StartStreamWorker()

	replayWorker := readout.NewReplayWorker(rd, r.Pool, r.Snoop(), log)
	done := make(chan error, 1)
	go func() { done <- replayWorker.Run() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	case <-time.After(10 * time.Minute):
		return cli.NewExitError("replay: timed out", 1)
	}

	if err := r.Stop(); err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	snap := r.Parser.Counters.Snapshot()
	fmt.Printf("replay: %d buffers, %d bytes, %d exceptions, %d dropped-from-snoop\n",
		snap.BuffersProcessed, snap.BytesProcessed, snap.ParserExceptions, replayWorker.Dropped())
	return nil
}
