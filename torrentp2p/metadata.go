package torrentp2p

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vaguilera/MiniTorrent/bencode"
	"github.com/vaguilera/MiniTorrent/torrentfile"
	"github.com/vaguilera/MiniTorrent/tracker"
)

const (
	extHandshakeID = 0

	utMetadata = "ut_metadata"

	metadataRequest = 0
	metadataData    = 1
	metadataReject  = 2
)

func (p *Peer) sendExtended(subID uint8, payload bencode.Value) error {
	encoded := bencode.Encode(payload)
	buf := make([]byte, 0, 1+len(encoded))
	buf = append(buf, subID)
	buf = append(buf, encoded...)
	return p.sendMessage(EXTENSION, buf)
}

// expectExtended reads an extension message and requires its sub id.
func (p *Peer) expectExtended(subID uint8) ([]byte, error) {
	msg, err := p.expect(EXTENSION)
	if err != nil {
		return nil, err
	}
	if len(msg.Payload) == 0 {
		return nil, violation(p.state, "empty extension message")
	}
	if msg.Payload[0] != subID {
		return nil, violation(p.state, "extension message %d, expected %d", msg.Payload[0], subID)
	}
	return msg.Payload[1:], nil
}

// ExtensionHandshake waits for the bitfield and then trades extension
// handshakes. It returns the id the peer wants ut_metadata requests sent
// with. Handshake must have been called with extensions enabled.
func (p *Peer) ExtensionHandshake() (uint8, error) {
	if p.remote != nil && !p.remote.SupportsExtensions() {
		return 0, p.fail(violation(p.state, "peer does not support the extension protocol"))
	}
	if err := p.awaitBitfield(); err != nil {
		return 0, p.fail(err)
	}

	p.state = StateExtensionHandshake
	m := bencode.NewDict().Set(utMetadata, bencode.Int(int64(p.cfg.extensionID())))
	handshake := bencode.NewDict().Set("m", bencode.DictValue(m))
	if err := p.sendExtended(extHandshakeID, bencode.DictValue(handshake)); err != nil {
		return 0, p.fail(err)
	}

	p.state = StateAwaitExtensionHandshake
	payload, err := p.expectExtended(extHandshakeID)
	if err != nil {
		return 0, p.fail(err)
	}
	reply, _, err := bencode.Decode(payload)
	if err != nil {
		return 0, p.fail(violation(p.state, "extension handshake: %v", err))
	}
	peerM, _ := reply.Get("m")
	idValue, ok := peerM.Get(utMetadata)
	if !ok {
		return 0, p.fail(violation(p.state, "peer does not offer %s", utMetadata))
	}
	id, ok := idValue.AsInt()
	if !ok || id < 1 || id > 255 {
		return 0, p.fail(violation(p.state, "invalid %s id %v", utMetadata, idValue))
	}
	if size, ok := reply.Get("metadata_size"); ok {
		if n, _ := size.AsInt(); n > MaxMetadataSize {
			return 0, p.fail(violation(p.state, "metadata of %d bytes spans more than one piece", n))
		}
	}

	p.log.Debug("extension handshake received", "ut_metadata", id)
	return uint8(id), nil
}

// FetchInfo pulls the info dictionary from the peer with ut_metadata and
// checks it against the info hash the session was opened for.
func (p *Peer) FetchInfo() (*torrentfile.Info, error) {
	peerExtID, err := p.ExtensionHandshake()
	if err != nil {
		return nil, err
	}

	p.state = StateMetadataRequest
	request := bencode.NewDict().
		Set("msg_type", bencode.Int(metadataRequest)).
		Set("piece", bencode.Int(0))
	if err := p.sendExtended(peerExtID, bencode.DictValue(request)); err != nil {
		return nil, p.fail(err)
	}

	p.state = StateAwaitMetadata
	payload, err := p.expectExtended(p.cfg.extensionID())
	if err != nil {
		return nil, p.fail(err)
	}

	// The control dictionary is followed directly by the info dictionary.
	control, rest, err := bencode.Decode(payload)
	if err != nil {
		return nil, p.fail(violation(p.state, "metadata control dictionary: %v", err))
	}
	msgType, _ := control.Get("msg_type")
	switch t, _ := msgType.AsInt(); t {
	case metadataData:
	case metadataReject:
		return nil, p.fail(violation(p.state, "peer rejected the metadata request"))
	default:
		return nil, p.fail(violation(p.state, "unexpected metadata msg_type %v", msgType))
	}
	if piece, _ := control.Get("piece"); !piece.Equal(bencode.Int(0)) {
		return nil, p.fail(violation(p.state, "metadata piece %v, expected 0", piece))
	}

	infoValue, _, err := bencode.Decode(rest)
	if err != nil {
		return nil, p.fail(violation(p.state, "info dictionary: %v", err))
	}
	info, err := torrentfile.InfoFromValue(infoValue)
	if err != nil {
		return nil, p.fail(err)
	}
	if info.InfoHash != p.infoHash {
		return nil, p.fail(&IntegrityError{
			Kind:  MetadataHashMismatch,
			Piece: -1,
			Want:  p.infoHash,
			Got:   info.InfoHash,
		})
	}

	p.state = StateDone
	p.log.Info("metadata received", "name", info.Name, "length", info.Length)
	return info, nil
}

// FetchMetadata builds a complete Torrent for a magnet link by asking the
// given peers for the info dictionary, one after the other, until one of
// them serves metadata matching the magnet's info hash.
func FetchMetadata(magnet *torrentfile.Magnet, peers []tracker.Peer, cfg Config) (*torrentfile.Torrent, error) {
	if len(peers) == 0 {
		return nil, errors.New("no peers to fetch metadata from")
	}

	var errs []error
	for _, host := range peers {
		info, err := fetchInfoFrom(host.String(), magnet.InfoHash, cfg)
		if err == nil {
			return &torrentfile.Torrent{Announce: magnet.Tracker, Info: *info}, nil
		}
		slog.Warn("metadata fetch failed", "peer", host.String(), "err", err)
		errs = append(errs, err)
		if len(errs) >= cfg.attempts() {
			break
		}
	}
	return nil, fmt.Errorf("fetching metadata: %w", errors.Join(errs...))
}

func fetchInfoFrom(addr string, infoHash [20]byte, cfg Config) (*torrentfile.Info, error) {
	p, err := Dial(addr, infoHash, cfg)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if _, err := p.Handshake(true); err != nil {
		return nil, err
	}
	return p.FetchInfo()
}
