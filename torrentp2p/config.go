package torrentp2p

import (
	"math/rand"
	"time"
)

const peerIDPrefix = "-MT0100-"

const defaultExtensionID = 2

const alphanumeric = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Config holds the knobs shared by every session of a download.
type Config struct {
	PeerID [20]byte
	Port   uint16

	ConnectTimeout time.Duration
	// ReadTimeout bounds every single read and write on a session.
	// Zero means no deadline.
	ReadTimeout time.Duration

	// Workers is how many sessions may run at the same time.
	Workers int
	// MaxAttempts is how many peers a piece is tried against before the
	// download gives up. 1 aborts on the first failure.
	MaxAttempts int

	// ExtensionID is the id we advertise for ut_metadata. 0 is the
	// extension handshake itself and falls back to the default.
	ExtensionID uint8
}

func DefaultConfig() Config {
	return Config{
		PeerID:         NewPeerID(),
		Port:           6881,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
		Workers:        1,
		MaxAttempts:    1,
		ExtensionID:    defaultExtensionID,
	}
}

func NewPeerID() [20]byte {
	var id [20]byte
	copy(id[:], peerIDPrefix)
	for i := len(peerIDPrefix); i < len(id); i++ {
		id[i] = alphanumeric[rand.Intn(len(alphanumeric))]
	}
	return id
}

func (c Config) workers() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}

func (c Config) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

func (c Config) extensionID() uint8 {
	if c.ExtensionID == 0 {
		return defaultExtensionID
	}
	return c.ExtensionID
}
