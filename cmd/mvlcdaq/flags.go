package main

import "gopkg.in/urfave/cli.v1"

var verbosityFlag = cli.BoolFlag{
	Name:  "verbose",
	Usage: "enable debug logging on every worker",
}

var (
	transportFlag = cli.StringFlag{
		Name:  "transport",
		Usage: "controller transport: usb or eth",
		Value: "usb",
	}
	ethHostFlag = cli.StringFlag{
		Name:  "eth-host",
		Usage: "MVLC hostname or IP, required when transport=eth",
	}
	crateIDFlag = cli.IntFlag{
		Name:  "crate-id",
		Usage: "crate ID tagging every frame/event from this run",
		Value: 0,
	}
	archiveFlag = cli.StringFlag{
		Name:  "archive",
		Usage: "path to the split-ZIP archive to write (run) or read (replay)",
	}
	listfileBaseFlag = cli.StringFlag{
		Name:  "listfile-name",
		Usage: "base listfile entry name inside the archive",
		Value: "listfile.mvlclst",
	}
	remoteAddrFlag = cli.StringFlag{
		Name:  "remote",
		Usage: "remote control listen/dial address",
		Value: "127.0.0.1:9800",
	}
	snoopDepthFlag = cli.IntFlag{
		Name:  "snoop-depth",
		Usage: "live-analysis snoop queue depth",
		Value: 64,
	}
)
