package tracker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/url"
	"time"
)

const (
	actionConnect  = 0
	actionAnnounce = 1
	actionError    = 3

	protocolID = 0x41727101980
)

type connectionPacket struct {
	connectionID  uint64
	action        uint32
	transactionID uint32
}

type announcePacket struct {
	connection connectionPacket
	infoHash   [20]byte //The info-hash of the torrent you want announce yourself in.
	peerID     [20]byte //Your peer id.
	downloaded uint64   //The number of byte you've downloaded in this session.
	left       uint64   //The number of bytes you have left to download until you're finished.
	uploaded   uint64   //	The number of bytes you have uploaded in this session.
	event      uint32
	ip         uint32 //Your ip address. Set to 0 if you want the tracker to use the sender of this UDP packet.
	key        uint32 //A unique key that is randomized by the client.
	numWant    int32  //The maximum number of peers you want in the reply. Use -1 for default.
	port       uint16 //The port you're listening on.
}

type announceResponsePacket struct {
	Action        uint32
	TransactionID uint32
	Interval      uint32
	Leechers      uint32
	Seeders       uint32
	Peers         []Peer
}

func unmarshallAnnounce(buffer []byte) (*announceResponsePacket, error) {
	if len(buffer) < 20 {
		return nil, fmt.Errorf("announce response of %d bytes is too short", len(buffer))
	}

	response := announceResponsePacket{
		Action:        binary.BigEndian.Uint32(buffer[0:4]),
		TransactionID: binary.BigEndian.Uint32(buffer[4:8]),
		Interval:      binary.BigEndian.Uint32(buffer[8:12]),
		Leechers:      binary.BigEndian.Uint32(buffer[12:16]),
		Seeders:       binary.BigEndian.Uint32(buffer[16:20]),
	}

	peers, err := ParseCompact(buffer[20:])
	if err != nil {
		return nil, err
	}
	response.Peers = peers

	return &response, nil
}

// UDPTracker speaks the UDP tracker protocol (BEP 15).
type UDPTracker struct {
	Timeout time.Duration

	conn         *net.UDPConn
	connectionID uint64
}

func (t *UDPTracker) sendReceiveMessage(message interface{}, transactionID uint32) ([]byte, error) {
	buf, err := StructToBuffer(message)
	if err != nil {
		return nil, err
	}

	if _, err = t.conn.Write(buf); err != nil {
		return nil, err
	}

	buffer := make([]byte, 2048)
	n, _, err := t.conn.ReadFromUDP(buffer)
	if err != nil {
		return nil, err
	}
	buffer = buffer[:n]

	if n < 8 {
		return nil, fmt.Errorf("tracker reply of %d bytes is too short", n)
	}
	if binary.BigEndian.Uint32(buffer[0:4]) == actionError {
		return nil, fmt.Errorf("tracker error: %s", buffer[8:])
	}
	if binary.BigEndian.Uint32(buffer[4:8]) != transactionID {
		return nil, errors.New("tracker reply has a different transaction id")
	}
	return buffer, nil
}

// connect dials the tracker and obtains a connection id. On error the
// socket is already closed.
func (t *UDPTracker) connect(host string) (err error) {
	s, err := net.ResolveUDPAddr("udp4", host)
	if err != nil {
		return err
	}
	c, err := net.DialUDP("udp4", nil, s)
	if err != nil {
		return err
	}
	t.conn = c
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	timeout := t.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	t.conn.SetDeadline(time.Now().Add(timeout))

	slog.Debug("connecting to udp tracker", "host", host, "addr", c.RemoteAddr().String())

	handshake := &connectionPacket{
		connectionID:  protocolID,
		action:        actionConnect,
		transactionID: rand.Uint32(),
	}

	buffer, err := t.sendReceiveMessage(handshake, handshake.transactionID)
	if err != nil {
		return err
	}
	if len(buffer) < 16 {
		return fmt.Errorf("connect reply of %d bytes is too short", len(buffer))
	}

	t.connectionID = binary.BigEndian.Uint64(buffer[8:16])
	return nil
}

func (t *UDPTracker) Announce(req Request) ([]Peer, error) {
	u, err := url.Parse(req.Announce)
	if err != nil {
		return nil, err
	}
	if err := t.connect(u.Host); err != nil {
		return nil, fmt.Errorf("udp tracker %s: %w", u.Host, err)
	}
	defer t.conn.Close()

	conn := connectionPacket{
		connectionID:  t.connectionID,
		action:        actionAnnounce,
		transactionID: rand.Uint32(),
	}

	announce := announcePacket{
		connection: conn,
		infoHash:   req.InfoHash,
		peerID:     req.PeerID,
		downloaded: 0,
		left:       uint64(req.Left),
		uploaded:   0,
		event:      2,
		ip:         0,
		key:        rand.Uint32(),
		numWant:    200,
		port:       req.Port,
	}

	buffer, err := t.sendReceiveMessage(announce, conn.transactionID)
	if err != nil {
		return nil, fmt.Errorf("udp tracker %s: %w", u.Host, err)
	}

	response, err := unmarshallAnnounce(buffer)
	if err != nil {
		return nil, err
	}
	slog.Info("tracker answered", "tracker", u.Host, "peers", len(response.Peers),
		"seeders", response.Seeders, "leechers", response.Leechers)

	return response.Peers, nil
}
