package torrentp2p

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork   = errors.New("network error")
	ErrProtocol  = errors.New("protocol violation")
	ErrIntegrity = errors.New("integrity error")
)

// NetworkError wraps a failed connect, read or write.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ProtocolViolation reports a message the session did not expect in its
// current state, or a malformed one.
type ProtocolViolation struct {
	State  State
	Want   MessageID
	Got    MessageID
	Detail string
}

func (e *ProtocolViolation) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("protocol violation in %s: %s", e.State, e.Detail)
	}
	return fmt.Sprintf("protocol violation in %s: expected %s message, got %s", e.State, e.Want, e.Got)
}

func (e *ProtocolViolation) Is(target error) bool { return target == ErrProtocol }

func violation(state State, format string, args ...interface{}) error {
	return &ProtocolViolation{State: state, Detail: fmt.Sprintf(format, args...)}
}

type IntegrityKind int

const (
	HashMismatch IntegrityKind = iota
	MetadataHashMismatch
)

func (k IntegrityKind) String() string {
	if k == MetadataHashMismatch {
		return "metadata hash mismatch"
	}
	return "hash mismatch"
}

// IntegrityError reports data whose SHA1 differs from the expected hash.
// The data itself is dropped.
type IntegrityError struct {
	Kind  IntegrityKind
	Piece int
	Want  [20]byte
	Got   [20]byte
}

func (e *IntegrityError) Error() string {
	if e.Kind == MetadataHashMismatch {
		return fmt.Sprintf("integrity error: %s: expected %x, got %x", e.Kind, e.Want, e.Got)
	}
	return fmt.Sprintf("integrity error: piece %d %s: expected %x, got %x", e.Piece, e.Kind, e.Want, e.Got)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// SessionError tells which peer, stage and piece a session failed at.
// Piece is -1 for metadata sessions.
type SessionError struct {
	Peer  string
	Stage State
	Piece int
	Err   error
}

func (e *SessionError) Error() string {
	if e.Piece < 0 {
		return fmt.Sprintf("peer %s, %s: %v", e.Peer, e.Stage, e.Err)
	}
	return fmt.Sprintf("peer %s, piece %d, %s: %v", e.Peer, e.Piece, e.Stage, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
