package torrentp2p

import "fmt"

// MessageID is the one byte type tag of a peer wire message.
type MessageID byte

const (
	CHOKE MessageID = iota
	UNCHOKE
	INTERESTED
	NOT_INTERESTED
	HAVE
	BITFIELD
	REQUEST
	PIECE
	CANCEL
	PORT // Not implemented. For DHT support.
	EXTENSION MessageID = 20
)

func (id MessageID) String() string {
	switch id {
	case CHOKE:
		return "choke"
	case UNCHOKE:
		return "unchoke"
	case INTERESTED:
		return "interested"
	case NOT_INTERESTED:
		return "not interested"
	case HAVE:
		return "have"
	case BITFIELD:
		return "bitfield"
	case REQUEST:
		return "request"
	case PIECE:
		return "piece"
	case CANCEL:
		return "cancel"
	case PORT:
		return "port"
	case EXTENSION:
		return "extension"
	default:
		return fmt.Sprintf("unknown(%d)", byte(id))
	}
}

const (
	// BlockSize is the largest block requested in a single message.
	BlockSize = 0x4000

	// MaxMessageLength bounds the declared length of an incoming frame.
	MaxMessageLength = 1 << 18

	// MaxMetadataSize is the largest info dictionary fetched from a peer:
	// one ut_metadata piece.
	MaxMetadataSize = BlockSize
)

type Message struct {
	ID      MessageID
	Payload []byte
}

// State is a step of a peer session, used to report where it failed.
type State int

const (
	StateHandshake State = iota
	StateAwaitBitfield
	StateSendInterested
	StateAwaitUnchoke
	StateRequestBlocks
	StateCollectBlocks
	StateVerify
	StateExtensionHandshake
	StateAwaitExtensionHandshake
	StateMetadataRequest
	StateAwaitMetadata
	StateDone
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateAwaitBitfield:
		return "await bitfield"
	case StateSendInterested:
		return "send interested"
	case StateAwaitUnchoke:
		return "await unchoke"
	case StateRequestBlocks:
		return "request blocks"
	case StateCollectBlocks:
		return "collect blocks"
	case StateVerify:
		return "verify"
	case StateExtensionHandshake:
		return "extension handshake"
	case StateAwaitExtensionHandshake:
		return "await extension handshake"
	case StateMetadataRequest:
		return "metadata request"
	case StateAwaitMetadata:
		return "await metadata"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

type pieceResult struct {
	Index int
	Data  []byte
}
