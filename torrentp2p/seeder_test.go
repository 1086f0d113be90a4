package torrentp2p

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/vaguilera/MiniTorrent/bencode"
	"github.com/vaguilera/MiniTorrent/torrentfile"
	"github.com/vaguilera/MiniTorrent/tracker"
)

const seederMetadataID = 3

var seederID = [20]byte{'-', 'S', 'D', '0', '0', '0', '1', '-', 's', 'e', 'e', 'd', 'e', 'r', 's', 'e', 'e', 'd', 'e', 'r'}

func sampleData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

func buildInfo(t *testing.T, data []byte, pieceLength int64) *torrentfile.Info {
	t.Helper()
	var pieces []byte
	for off := int64(0); off < int64(len(data)); off += pieceLength {
		end := off + pieceLength
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		sum := sha1.Sum(data[off:end])
		pieces = append(pieces, sum[:]...)
	}
	d := bencode.NewDict().
		Set("length", bencode.Int(int64(len(data)))).
		Set("name", bencode.String("sample.bin")).
		Set("piece length", bencode.Int(pieceLength)).
		Set("pieces", bencode.Bytes(pieces))
	info, err := torrentfile.InfoFromValue(bencode.DictValue(d))
	if err != nil {
		t.Fatalf("Unexpected error building info: %v", err)
	}
	return info
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReadTimeout = 5 * time.Second
	return cfg
}

func writeFrame(w io.Writer, id MessageID, payload []byte) error {
	buf := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(1+len(payload)))
	buf[4] = byte(id)
	copy(buf[5:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (MessageID, []byte, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return 0, nil, err
	}
	buf := make([]byte, binary.BigEndian.Uint32(lengthBuf))
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	return MessageID(buf[0]), buf[1:], nil
}

// seeder plays the remote side of a session. The zero options give a well
// behaved peer.
type seeder struct {
	info *torrentfile.Info
	data []byte

	extensions bool
	keepAlive  bool
	reverse    bool
	corrupt    bool
	choke      bool

	// metadata is served over ut_metadata instead of info.Raw when set.
	metadata *bencode.Value
	reject   bool
	// advertised receives the ut_metadata id the client offered.
	advertised chan int64
}

func (s *seeder) serve(conn net.Conn) error {
	defer conn.Close()

	buf := make([]byte, HandshakeSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return err
	}
	theirs, err := unMarshallHandShake(buf)
	if err != nil {
		return err
	}
	answer := newHandshake(theirs.InfoHash, seederID, s.extensions)
	if _, err := conn.Write(answer.Marshal()); err != nil {
		return err
	}
	if s.keepAlive {
		if _, err := conn.Write([]byte{0, 0, 0, 0}); err != nil {
			return err
		}
	}
	if err := writeFrame(conn, BITFIELD, []byte{0xff}); err != nil {
		return err
	}

	if s.extensions {
		return s.serveMetadata(conn)
	}
	return s.servePiece(conn)
}

func (s *seeder) servePiece(conn net.Conn) error {
	id, _, err := readFrame(conn)
	if err != nil {
		return err
	}
	if id != INTERESTED {
		return fmt.Errorf("expected interested, got %s", id)
	}
	if s.choke {
		return writeFrame(conn, HAVE, []byte{0, 0, 0, 0})
	}
	if err := writeFrame(conn, UNCHOKE, nil); err != nil {
		return err
	}

	// Every request is read before answering, the client pipelines them.
	var requests []blockRequest
	var requested int64
	for {
		id, payload, err := readFrame(conn)
		if err != nil {
			return err
		}
		if id != REQUEST {
			return fmt.Errorf("expected request, got %s", id)
		}
		req := blockRequest{
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}
		requests = append(requests, req)
		requested += int64(req.Length)
		size, err := s.info.PieceSize(int(req.Index))
		if err != nil {
			return err
		}
		if requested >= size {
			break
		}
	}

	if s.reverse {
		for i, j := 0, len(requests)-1; i < j; i, j = i+1, j-1 {
			requests[i], requests[j] = requests[j], requests[i]
		}
	}
	for _, req := range requests {
		off := s.info.PieceOffset(int(req.Index)) + int64(req.Begin)
		payload := make([]byte, 8+req.Length)
		binary.BigEndian.PutUint32(payload[0:4], req.Index)
		binary.BigEndian.PutUint32(payload[4:8], req.Begin)
		copy(payload[8:], s.data[off:off+int64(req.Length)])
		if s.corrupt {
			payload[8] ^= 0xff
		}
		if err := writeFrame(conn, PIECE, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) serveMetadata(conn net.Conn) error {
	id, payload, err := readFrame(conn)
	if err != nil {
		return err
	}
	if id != EXTENSION || len(payload) == 0 || payload[0] != extHandshakeID {
		return fmt.Errorf("expected extension handshake, got %s", id)
	}
	hs, _, err := bencode.Decode(payload[1:])
	if err != nil {
		return err
	}
	m, _ := hs.Get("m")
	idValue, _ := m.Get(utMetadata)
	clientID, _ := idValue.AsInt()
	if s.advertised != nil {
		s.advertised <- clientID
	}

	metadata := s.info.Raw
	if s.metadata != nil {
		metadata = *s.metadata
	}
	raw := bencode.Encode(metadata)

	reply := bencode.NewDict().
		Set("m", bencode.DictValue(bencode.NewDict().Set(utMetadata, bencode.Int(seederMetadataID)))).
		Set("metadata_size", bencode.Int(int64(len(raw))))
	if err := writeFrame(conn, EXTENSION, append([]byte{extHandshakeID}, bencode.Encode(bencode.DictValue(reply))...)); err != nil {
		return err
	}

	id, payload, err = readFrame(conn)
	if err != nil {
		return err
	}
	if id != EXTENSION || len(payload) == 0 || payload[0] != seederMetadataID {
		return fmt.Errorf("expected metadata request, got %s", id)
	}

	msgType := int64(metadataData)
	if s.reject {
		msgType = metadataReject
	}
	control := bencode.NewDict().
		Set("msg_type", bencode.Int(msgType)).
		Set("piece", bencode.Int(0))
	if !s.reject {
		control.Set("total_size", bencode.Int(int64(len(raw))))
	}
	out := append([]byte{byte(clientID)}, bencode.Encode(bencode.DictValue(control))...)
	if !s.reject {
		out = append(out, raw...)
	}
	return writeFrame(conn, EXTENSION, out)
}

// pipePeer returns a session connected to s through an in-memory pipe.
func pipePeer(t *testing.T, s *seeder, infoHash [20]byte) *Peer {
	t.Helper()
	client, server := net.Pipe()
	go s.serve(server)
	p := NewPeer(client, "pipe", infoHash, testConfig())
	t.Cleanup(func() { p.Close() })
	return p
}

// listenSeeder serves s on a local TCP port until the test ends.
func listenSeeder(t *testing.T, s *seeder) tracker.Peer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Unexpected error listening: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()

	addr := l.Addr().(*net.TCPAddr)
	return tracker.Peer{IP: addr.IP, Port: uint16(addr.Port)}
}
