package core

// Frame is a raw marshaled payload ready for the wire.
type Frame []byte

// SessionID identifies one live transport. A new transport always gets
// a fresh id, so a user reconnecting is a different session.
type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
