package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/vaguilera/MiniTorrent/bencode"
	"github.com/vaguilera/MiniTorrent/torrentfile"
	"github.com/vaguilera/MiniTorrent/torrentp2p"
	"github.com/vaguilera/MiniTorrent/tracker"
)

// unknownLeft is announced for magnet links, whose length is not known
// until the metadata arrives.
const unknownLeft = 999

func Decode(encoded string) error {
	v, err := bencode.DecodeAll([]byte(encoded))
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func printInfo(announce string, info *torrentfile.Info) {
	fmt.Printf("Tracker URL: %s\n", announce)
	fmt.Printf("Length: %d\n", info.Length)
	fmt.Printf("Info Hash: %s\n", info.InfoHashHex())
	fmt.Printf("Piece Length: %d\n", info.PieceLength)
	fmt.Println("Piece Hashes:")
	for _, h := range info.PieceHashesHex() {
		fmt.Println(h)
	}
}

func Info(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	torrent, err := torrentfile.FromBytes(data)
	if err != nil {
		return err
	}
	if desc, err := torrentfile.Describe(data); err == nil {
		slog.Info("torrent description", "description", desc)
	}
	slog.Info("torrent size", "name", torrent.Info.Name, "size", humanize.Bytes(uint64(torrent.Info.Length)))

	printInfo(torrent.Announce, &torrent.Info)
	return nil
}

func Peers(file string, cfg torrentp2p.Config) error {
	torrent, err := torrentfile.TorrentFromFile(file)
	if err != nil {
		return err
	}
	peers, err := torrentp2p.NewDownloader(cfg).Peers(torrent)
	if err != nil {
		return err
	}
	for _, p := range peers {
		fmt.Println(p)
	}
	return nil
}

func Handshake(file, addr string, cfg torrentp2p.Config) error {
	torrent, err := torrentfile.TorrentFromFile(file)
	if err != nil {
		return err
	}
	p, err := torrentp2p.Dial(addr, torrent.Info.InfoHash, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	remote, err := p.Handshake(false)
	if err != nil {
		return err
	}
	fmt.Printf("Peer ID: %x\n", remote.PeerID)
	return nil
}

// downloadArgs parses "-o <output> <source> [piece]".
func downloadArgs(command string, args []string, withPiece bool) (output, source string, piece int, err error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	out := fs.String("o", "", "Output file")
	if err = fs.Parse(args); err != nil {
		return
	}
	want := 1
	if withPiece {
		want = 2
	}
	if *out == "" || fs.NArg() != want {
		err = fmt.Errorf("usage: %s -o <output> <source>", command)
		if withPiece {
			err = fmt.Errorf("usage: %s -o <output> <source> <piece>", command)
		}
		return
	}
	output, source = *out, fs.Arg(0)
	if withPiece {
		if piece, err = strconv.Atoi(fs.Arg(1)); err != nil {
			err = fmt.Errorf("invalid piece index %q: %w", fs.Arg(1), err)
		}
	}
	return
}

func writePiece(down *torrentp2p.Downloader, torrent *torrentfile.Torrent, index int, output string) error {
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := down.DownloadPiece(torrent, index, f); err != nil {
		f.Close()
		os.Remove(output)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Piece %d downloaded to %s.\n", index, output)
	return nil
}

func writeFile(down *torrentp2p.Downloader, torrent *torrentfile.Torrent, output string) error {
	fw, err := torrentp2p.CreateFile(output, torrent.Info.Length)
	if err != nil {
		return err
	}
	if err := down.Download(torrent, fw); err != nil {
		fw.Close()
		os.Remove(output)
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}
	fmt.Printf("Downloaded %s to %s.\n", humanize.Bytes(uint64(torrent.Info.Length)), output)
	return nil
}

func DownloadPiece(args []string, cfg torrentp2p.Config) error {
	output, file, index, err := downloadArgs("download_piece", args, true)
	if err != nil {
		return err
	}
	torrent, err := torrentfile.TorrentFromFile(file)
	if err != nil {
		return err
	}
	return writePiece(torrentp2p.NewDownloader(cfg), torrent, index, output)
}

func Download(args []string, cfg torrentp2p.Config) error {
	output, file, _, err := downloadArgs("download", args, false)
	if err != nil {
		return err
	}
	torrent, err := torrentfile.TorrentFromFile(file)
	if err != nil {
		return err
	}
	return writeFile(torrentp2p.NewDownloader(cfg), torrent, output)
}

func MagnetParse(uri string) error {
	m, err := torrentfile.ParseMagnet(uri)
	if err != nil {
		return err
	}
	fmt.Printf("Tracker URL: %s\n", m.Tracker)
	fmt.Printf("Info Hash: %s\n", m.InfoHashHex())
	return nil
}

// magnetSession parses uri and asks its tracker for peers. The returned
// downloader keeps those peers for the piece downloads that follow.
func magnetSession(uri string, cfg torrentp2p.Config) (*torrentfile.Magnet, *torrentp2p.Downloader, []tracker.Peer, error) {
	m, err := torrentfile.ParseMagnet(uri)
	if err != nil {
		return nil, nil, nil, err
	}
	if m.Tracker == "" {
		return nil, nil, nil, errors.New("magnet link has no tracker")
	}

	down := torrentp2p.NewDownloader(cfg)
	placeholder := &torrentfile.Torrent{
		Announce: m.Tracker,
		Info:     torrentfile.Info{InfoHash: m.InfoHash, Length: unknownLeft},
	}
	peers, err := down.Peers(placeholder)
	if err != nil {
		return nil, nil, nil, err
	}
	return m, down, peers, nil
}

func magnetTorrent(uri string, cfg torrentp2p.Config) (*torrentfile.Torrent, *torrentp2p.Downloader, error) {
	m, down, peers, err := magnetSession(uri, cfg)
	if err != nil {
		return nil, nil, err
	}
	torrent, err := torrentp2p.FetchMetadata(m, peers, cfg)
	if err != nil {
		return nil, nil, err
	}
	return torrent, down, nil
}

func MagnetHandshake(uri string, cfg torrentp2p.Config) error {
	m, _, peers, err := magnetSession(uri, cfg)
	if err != nil {
		return err
	}

	p, err := torrentp2p.Dial(peers[0].String(), m.InfoHash, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	remote, err := p.Handshake(true)
	if err != nil {
		return err
	}
	fmt.Printf("Peer ID: %x\n", remote.PeerID)

	id, err := p.ExtensionHandshake()
	if err != nil {
		return err
	}
	fmt.Printf("Peer Metadata Extension ID: %d\n", id)
	return nil
}

func MagnetInfo(uri string, cfg torrentp2p.Config) error {
	torrent, _, err := magnetTorrent(uri, cfg)
	if err != nil {
		return err
	}
	printInfo(torrent.Announce, &torrent.Info)
	return nil
}

func MagnetDownloadPiece(args []string, cfg torrentp2p.Config) error {
	output, uri, index, err := downloadArgs("magnet_download_piece", args, true)
	if err != nil {
		return err
	}
	torrent, down, err := magnetTorrent(uri, cfg)
	if err != nil {
		return err
	}
	return writePiece(down, torrent, index, output)
}

func MagnetDownload(args []string, cfg torrentp2p.Config) error {
	output, uri, _, err := downloadArgs("magnet_download", args, false)
	if err != nil {
		return err
	}
	torrent, down, err := magnetTorrent(uri, cfg)
	if err != nil {
		return err
	}
	return writeFile(down, torrent, output)
}
