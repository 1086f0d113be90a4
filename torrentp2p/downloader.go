package torrentp2p

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/vaguilera/MiniTorrent/torrentfile"
	"github.com/vaguilera/MiniTorrent/tracker"
)

// LocalClient is the peer used instead of the tracker when the
// TEST_LOCAL_CLIENT environment variable is "true".
var LocalClient = tracker.Peer{IP: net.ParseIP("127.0.0.1"), Port: 25771}

// Downloader fetches the pieces of a torrent from the peers its tracker
// returns. Every piece gets a fresh session.
type Downloader struct {
	// Tracker overrides the announcer picked from the torrent's announce
	// url.
	Tracker tracker.Announcer
	Config  Config

	peers []tracker.Peer
}

func NewDownloader(cfg Config) *Downloader {
	return &Downloader{Config: cfg}
}

func (down *Downloader) peerExists(peer tracker.Peer) bool {
	for _, exPeer := range down.peers {
		if peer.IP.Equal(exPeer.IP) && peer.Port == exPeer.Port {
			return true
		}
	}
	return false
}

func (down *Downloader) getPeers(t *torrentfile.Torrent) error {
	announcer := down.Tracker
	if announcer == nil {
		var err error
		if announcer, err = tracker.New(t.Announce); err != nil {
			return err
		}
	}

	slog.Info("retrieving peers", "tracker", t.Announce)
	peers, err := announcer.Announce(tracker.Request{
		Announce: t.Announce,
		InfoHash: t.Info.InfoHash,
		PeerID:   down.Config.PeerID,
		Port:     down.Config.Port,
		Left:     t.Info.Length,
	})
	if err != nil {
		return fmt.Errorf("announcing to %s: %w", t.Announce, err)
	}

	for _, p := range peers {
		if !down.peerExists(p) {
			down.peers = append(down.peers, p)
		}
	}
	return nil
}

// Peers returns the peers sharing t, asking the tracker only once.
func (down *Downloader) Peers(t *torrentfile.Torrent) ([]tracker.Peer, error) {
	if len(down.peers) > 0 {
		return down.peers, nil
	}

	if os.Getenv("TEST_LOCAL_CLIENT") == "true" {
		slog.Debug("using local connection, not asking the tracker", "peer", LocalClient.String())
		down.peers = append(down.peers, LocalClient)
		return down.peers, nil
	}

	if err := down.getPeers(t); err != nil {
		return nil, err
	}
	if len(down.peers) == 0 {
		return nil, errors.New("tracker returned no peers")
	}
	return down.peers, nil
}

func (down *Downloader) fetchPiece(addr string, info *torrentfile.Info, index int) ([]byte, error) {
	p, err := Dial(addr, info.InfoHash, down.Config)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if _, err := p.Handshake(false); err != nil {
		return nil, err
	}
	return p.DownloadPiece(info, index)
}

// piece downloads one piece, starting with the peer at index modulo the
// number of peers and moving on to the next one while attempts remain.
func (down *Downloader) piece(info *torrentfile.Info, index int) ([]byte, error) {
	attempts := down.Config.attempts()
	if attempts > len(down.peers) {
		attempts = len(down.peers)
	}

	var errs []error
	for attempt := 0; attempt < attempts; attempt++ {
		host := down.peers[(index+attempt)%len(down.peers)]
		data, err := down.fetchPiece(host.String(), info, index)
		if err == nil {
			return data, nil
		}
		slog.Warn("piece download failed", "piece", index, "peer", host.String(), "attempt", attempt+1, "err", err)
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// DownloadPiece writes the single verified piece index of t to out.
func (down *Downloader) DownloadPiece(t *torrentfile.Torrent, index int, out io.Writer) error {
	if index < 0 || index >= t.Info.NumPieces() {
		return fmt.Errorf("piece %d out of range, torrent has %d pieces", index, t.Info.NumPieces())
	}
	if _, err := down.Peers(t); err != nil {
		return err
	}

	data, err := down.piece(&t.Info, index)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// Download fetches every piece of t and writes it at its offset in out.
// With one worker pieces go in ascending order. The first piece that
// cannot be downloaded stops the whole download.
func (down *Downloader) Download(t *torrentfile.Torrent, out io.WriterAt) error {
	if _, err := down.Peers(t); err != nil {
		return err
	}

	numPieces := t.Info.NumPieces()
	numWorkers := down.Config.workers()
	if numWorkers > numPieces {
		numWorkers = numPieces
	}
	slog.Info("starting download", "name", t.Info.Name, "size", humanize.Bytes(uint64(t.Info.Length)),
		"pieces", numPieces, "workers", numWorkers, "peers", len(down.peers))

	jobs := make(chan int)
	results := make(chan pieceResult)
	done := make(chan struct{})

	// The first failure, from a worker or from the writer, closes done.
	var failOnce sync.Once
	var failure error
	fail := func(err error) {
		failOnce.Do(func() {
			failure = err
			close(done)
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				var index int
				select {
				case <-done:
					return
				case next, ok := <-jobs:
					if !ok {
						return
					}
					index = next
				}
				// jobs and done may both be ready; done wins.
				if stopped(done) {
					return
				}

				data, err := down.piece(&t.Info, index)
				if err != nil {
					fail(err)
					return
				}
				select {
				case results <- pieceResult{Index: index, Data: data}:
				case <-done:
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for index := 0; index < numPieces; index++ {
			select {
			case jobs <- index:
			case <-done:
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var written int64
	for res := range results {
		if stopped(done) {
			continue
		}
		if _, err := out.WriteAt(res.Data, t.Info.PieceOffset(res.Index)); err != nil {
			fail(fmt.Errorf("writing piece %d: %w", res.Index, err))
			continue
		}
		written += int64(len(res.Data))
		slog.Info("piece written", "piece", res.Index,
			"progress", fmt.Sprintf("%s / %s", humanize.Bytes(uint64(written)), humanize.Bytes(uint64(t.Info.Length))))
	}
	// results is closed only after every worker returned, so failure is
	// no longer written to.
	if failure != nil {
		return failure
	}

	slog.Info("file downloaded", "name", t.Info.Name, "size", humanize.Bytes(uint64(written)))
	return nil
}

func stopped(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
