package app

import "github.com/avelin/Parley/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackpressure(sid core.SessionID) BackpressureAction
}

// KickSlowPolicy disconnects a peer that cannot keep up, so one slow
// reader never stalls fan-out to the rest of the room.
type KickSlowPolicy struct{}

func (KickSlowPolicy) OnBackpressure(sid core.SessionID) BackpressureAction {
	return KickMember
}
