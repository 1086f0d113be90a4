package torrentp2p

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"
)

// Peer is one session with a remote peer over a single TCP connection.
// Sessions are synchronous; every call blocks until the peer answers or
// the configured deadline passes.
type Peer struct {
	host     string
	conn     net.Conn
	cfg      Config
	infoHash [20]byte

	state    State
	piece    int
	remote   *Handshake
	log      *slog.Logger
}

// Dial opens a TCP connection to addr. The session still has to
// exchange handshakes before anything else.
func Dial(addr string, infoHash [20]byte, cfg Config) (*Peer, error) {
	slog.Debug("trying to connect", "peer", addr)
	c, err := net.DialTimeout("tcp", addr, cfg.ConnectTimeout)
	if err != nil {
		return nil, &SessionError{
			Peer:  addr,
			Stage: StateHandshake,
			Piece: -1,
			Err:   &NetworkError{Op: "connect", Err: err},
		}
	}
	slog.Debug("connected to peer", "peer", addr)
	return NewPeer(c, addr, infoHash, cfg), nil
}

// NewPeer wraps an established connection.
func NewPeer(conn net.Conn, addr string, infoHash [20]byte, cfg Config) *Peer {
	return &Peer{
		host:     addr,
		conn:     conn,
		cfg:      cfg,
		infoHash: infoHash,
		state:    StateHandshake,
		piece:    -1,
		log:      slog.With("peer", addr),
	}
}

func (p *Peer) Close() error {
	return p.conn.Close()
}

func (p *Peer) fail(err error) error {
	var se *SessionError
	if errors.As(err, &se) {
		return err
	}
	return &SessionError{Peer: p.host, Stage: p.state, Piece: p.piece, Err: err}
}

func (p *Peer) deadline() {
	if p.cfg.ReadTimeout > 0 {
		p.conn.SetDeadline(time.Now().Add(p.cfg.ReadTimeout))
	}
}

func (p *Peer) write(op string, buf []byte) error {
	p.deadline()
	if _, err := p.conn.Write(buf); err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	return nil
}

func (p *Peer) readFull(op string, buf []byte) error {
	p.deadline()
	if _, err := io.ReadFull(p.conn, buf); err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	return nil
}

func (p *Peer) sendMessage(messageID MessageID, payload []byte) error {
	buf := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(1+len(payload)))
	buf[4] = byte(messageID)
	copy(buf[5:], payload)
	p.log.Debug("sending message", "message", messageID, "length", len(payload))
	return p.write("send "+messageID.String(), buf)
}

// readMessage reads one length prefixed frame. Keep-alives, which carry
// no id, are skipped.
func (p *Peer) readMessage() (*Message, error) {
	lengthBuf := make([]byte, 4)
	for {
		if err := p.readFull("read message length", lengthBuf); err != nil {
			return nil, err
		}

		lengthM := binary.BigEndian.Uint32(lengthBuf)
		if lengthM == 0 {
			p.log.Debug("keep alive message")
			continue
		}
		if lengthM > MaxMessageLength {
			return nil, violation(p.state, "message of %d bytes exceeds %d", lengthM, MaxMessageLength)
		}

		messageBuf := make([]byte, lengthM)
		if err := p.readFull("read message", messageBuf); err != nil {
			return nil, err
		}

		msg := &Message{
			ID:      MessageID(messageBuf[0]),
			Payload: messageBuf[1:],
		}
		p.log.Debug("received message", "message", msg.ID, "length", len(msg.Payload))
		return msg, nil
	}
}

// expect reads the next message and requires it to be of type id.
func (p *Peer) expect(id MessageID) (*Message, error) {
	msg, err := p.readMessage()
	if err != nil {
		return nil, err
	}
	if msg.ID != id {
		return nil, &ProtocolViolation{State: p.state, Want: id, Got: msg.ID}
	}
	return msg, nil
}

// Handshake exchanges handshakes with the peer. With extensions set the
// extension protocol bit is advertised.
func (p *Peer) Handshake(extensions bool) (*Handshake, error) {
	p.state = StateHandshake
	local := newHandshake(p.infoHash, p.cfg.PeerID, extensions)
	if err := p.write("send handshake", local.Marshal()); err != nil {
		return nil, p.fail(err)
	}

	buffer := make([]byte, HandshakeSize)
	if err := p.readFull("read handshake", buffer); err != nil {
		return nil, p.fail(err)
	}
	answer, err := unMarshallHandShake(buffer)
	if err != nil {
		return nil, p.fail(err)
	}
	if answer.InfoHash != p.infoHash {
		return nil, p.fail(violation(StateHandshake, "peer answered for info hash %x", answer.InfoHash))
	}

	p.remote = answer
	p.state = StateAwaitBitfield
	p.log.Debug("handshake received", "peer id", hex.EncodeToString(answer.PeerID[:]),
		"extensions", answer.SupportsExtensions())
	return answer, nil
}

// awaitBitfield reads the bitfield every peer sends right after the
// handshake. Its content is not interpreted.
func (p *Peer) awaitBitfield() error {
	if p.state != StateAwaitBitfield {
		return violation(p.state, "bitfield expected right after the handshake")
	}
	_, err := p.expect(BITFIELD)
	return err
}
