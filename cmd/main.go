package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/vaguilera/MiniTorrent/torrentfile"
	"github.com/vaguilera/MiniTorrent/torrentp2p"
)

func printHelp() {
	fmt.Fprintf(flag.CommandLine.Output(), `MiniTorrent client V1.1
Usage:
	minitorrent [flags] <command> [args]

Commands:
	decode <bencoded value>
	info <torrentfile>
	peers <torrentfile>
	handshake <torrentfile> <ip:port>
	download_piece -o <output> <torrentfile> <piece>
	download -o <output> <torrentfile>
	magnet_parse <magnet link>
	magnet_handshake <magnet link>
	magnet_info <magnet link>
	magnet_download_piece -o <output> <magnet link> <piece>
	magnet_download -o <output> <magnet link>

Flags:
`)
	flag.PrintDefaults()
}

var (
	debugLevel = DebugWarning
	workers    = flag.Int("w", 1, "Number of workers")
	retries    = flag.Int("retries", 1, "Peers a piece is tried against before giving up")
	timeout    = flag.Duration("timeout", 30*time.Second, "Timeout of every read and write on a peer connection")
)

func main() {
	flag.Var(&debugLevel, "debug", "Debug level (info, debug, warning)")
	flag.Usage = printHelp
	flag.Parse()
	setupLogger()

	args := flag.Args()
	if len(args) < 2 {
		printHelp()
		os.Exit(2)
	}

	cfg := torrentp2p.DefaultConfig()
	cfg.Workers = *workers
	cfg.MaxAttempts = *retries
	cfg.ReadTimeout = *timeout

	if err := run(args[0], args[1:], cfg); err != nil {
		if torrentfile.IsParseError(err) {
			fmt.Fprintf(os.Stderr, "invalid torrent: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(command string, args []string, cfg torrentp2p.Config) error {
	switch command {
	case "decode":
		return Decode(args[0])
	case "info":
		return Info(args[0])
	case "peers":
		return Peers(args[0], cfg)
	case "handshake":
		if len(args) < 2 {
			return fmt.Errorf("usage: handshake <torrentfile> <ip:port>")
		}
		slog.Info("connection to be used", "connection", args[1])
		return Handshake(args[0], args[1], cfg)
	case "download_piece":
		return DownloadPiece(args, cfg)
	case "download":
		return Download(args, cfg)
	case "magnet_parse":
		return MagnetParse(args[0])
	case "magnet_handshake":
		return MagnetHandshake(args[0], cfg)
	case "magnet_info":
		return MagnetInfo(args[0], cfg)
	case "magnet_download_piece":
		return MagnetDownloadPiece(args, cfg)
	case "magnet_download":
		return MagnetDownload(args, cfg)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// LOGGING

func setupLogger() {
	var logLevel slog.Level
	switch debugLevel {
	case DebugDebug:
		logLevel = slog.LevelDebug
	case DebugInfo:
		logLevel = slog.LevelInfo
	default:
		logLevel = slog.LevelWarn
	}

	// Logs go to stderr, stdout carries the command output.
	logger := slog.New(slog.NewTextHandler(
		os.Stderr,
		&slog.HandlerOptions{Level: logLevel},
	))
	slog.SetDefault(logger)
}

type DebugType int

const (
	DebugInfo DebugType = iota
	DebugDebug
	DebugWarning
)

func (dt *DebugType) String() string {
	switch *dt {
	case DebugInfo:
		return "info"
	case DebugDebug:
		return "debug"
	case DebugWarning:
		return "warning"
	default:
		return "unknown"
	}
}

func (dt *DebugType) Set(s string) error {
	switch s {
	case "info":
		*dt = DebugInfo
	case "debug":
		*dt = DebugDebug
	case "warning", "warn":
		*dt = DebugWarning
	default:
		return fmt.Errorf("invalid debug type: %s", s)
	}
	return nil
}
