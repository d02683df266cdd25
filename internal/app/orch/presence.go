package orch

import (
	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

// roster rebuilds the participant list from scratch, in join order.
// Always a full rebuild, never an incremental patch.
func (o *Orchestrator) roster(roomID domain.RoomID, except core.SessionID) []core.ParticipantDTO {
	host, _ := o.Rooms.Host(roomID)
	sids := o.Rooms.Participants(roomID)
	out := make([]core.ParticipantDTO, 0, len(sids))
	for _, sid := range sids {
		if sid == except {
			continue
		}
		user, ok := o.Registry.View(sid)
		if !ok {
			continue
		}
		out = append(out, core.ParticipantDTO{
			UserID:   user.ID,
			Username: user.Username,
			Media:    user.Media,
			IsHost:   sid == host,
		})
	}
	return out
}

// publishPresence rebroadcasts the authoritative roster to the room.
// Callers hold o.mu.
func (o *Orchestrator) publishPresence(roomID domain.RoomID) {
	o.broadcastRoom(roomID, ParticipantList{
		Type:         EventParticipantList,
		Participants: o.roster(roomID, ""),
	}, "")
}

// MediaChanged merges a partial media-state update, then fans out both
// the raw delta (low-latency, sender excluded) and the rebuilt roster.
func (o *Orchestrator) MediaChanged(sid core.SessionID, delta domain.MediaDelta) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if delta.Empty() {
		return
	}
	if _, ok := o.Registry.MergeMedia(sid, delta); !ok {
		return
	}
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	o.broadcastRoom(roomID, MediaStateChanged{
		Type:     EventMediaStateChanged,
		UserID:   domain.UserID(sid),
		Muted:    delta.Muted,
		VideoOff: delta.VideoOff,
	}, sid)
	o.publishPresence(roomID)
}
