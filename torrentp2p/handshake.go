package torrentp2p

import (
	"bytes"
	"fmt"
)

const (
	protocolName  = "BitTorrent protocol"
	HandshakeSize = 1 + len(protocolName) + 8 + 20 + 20

	// extensionByte and extensionBit locate the BEP 10 flag in the
	// reserved bytes.
	extensionByte = 5
	extensionBit  = 0x10
)

// Handshake is the fixed 68 byte message that opens every session.
type Handshake struct {
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

func newHandshake(infoHash, peerID [20]byte, extensions bool) Handshake {
	h := Handshake{InfoHash: infoHash, PeerID: peerID}
	if extensions {
		h.Reserved[extensionByte] |= extensionBit
	}
	return h
}

// SupportsExtensions reports whether the extension protocol bit is set.
func (h Handshake) SupportsExtensions() bool {
	return h.Reserved[extensionByte]&extensionBit != 0
}

func (h Handshake) Marshal() []byte {
	buf := make([]byte, 0, HandshakeSize)
	buf = append(buf, byte(len(protocolName)))
	buf = append(buf, protocolName...)
	buf = append(buf, h.Reserved[:]...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

func unMarshallHandShake(buffer []byte) (*Handshake, error) {
	if len(buffer) != HandshakeSize {
		return nil, violation(StateHandshake, "handshake of %d bytes", len(buffer))
	}
	if int(buffer[0]) != len(protocolName) || !bytes.Equal(buffer[1:20], []byte(protocolName)) {
		return nil, violation(StateHandshake, "unknown protocol %q", fmt.Sprintf("%.*s", int(buffer[0]), buffer[1:]))
	}

	var response Handshake
	copy(response.Reserved[:], buffer[20:28])
	copy(response.InfoHash[:], buffer[28:48])
	copy(response.PeerID[:], buffer[48:68])

	return &response, nil
}
