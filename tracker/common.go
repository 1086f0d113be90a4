package tracker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Peer is an IPv4 address and port taken from a compact peer list.
type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Request carries what a tracker needs to know about us and the torrent.
type Request struct {
	Announce string
	InfoHash [20]byte
	PeerID   [20]byte
	Port     uint16
	Left     int64
}

// Announcer resolves a torrent to the peers currently sharing it.
type Announcer interface {
	Announce(req Request) ([]Peer, error)
}

// New returns the tracker client matching the scheme of announce.
func New(announce string) (Announcer, error) {
	u, err := url.Parse(announce)
	if err != nil {
		return nil, fmt.Errorf("invalid announce url %q: %w", announce, err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPTracker(), nil
	case "udp":
		return &UDPTracker{}, nil
	default:
		return nil, fmt.Errorf("unsupported tracker scheme %q", u.Scheme)
	}
}

// ParseCompact splits a compact peer list, 4 address bytes and a big
// endian port per peer.
func ParseCompact(buffer []byte) ([]Peer, error) {
	if len(buffer)%6 != 0 {
		return nil, fmt.Errorf("compact peer list of %d bytes is not a multiple of 6", len(buffer))
	}

	peers := make([]Peer, 0, len(buffer)/6)
	for i := 0; i < len(buffer); i += 6 {
		ip := make(net.IP, 4)
		copy(ip, buffer[i:i+4])
		peers = append(peers, Peer{
			IP:   ip,
			Port: binary.BigEndian.Uint16(buffer[i+4 : i+6]),
		})
	}
	return peers, nil
}

func StructToBuffer(st interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.BigEndian, st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
