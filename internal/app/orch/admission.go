package orch

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

// RequestJoin runs the admission state machine for one request.
//
// First request against an unknown room id creates the room with the
// requester as host. A request from a current participant re-emits the
// snapshot. Anything else lands on the waiting list, deduplicated per
// connection, and the host is notified.
//
// The returned error is only ever a malformed-room-id; the adapter
// surfaces it to the requester.
func (o *Orchestrator) RequestJoin(sid core.SessionID, rawRoomID, username string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	roomID, err := domain.NormalizeRoomID(rawRoomID)
	if err != nil {
		return err
	}
	if username != "" {
		// Invalid names keep the placeholder; not worth an error event.
		_ = o.Registry.SetUsername(sid, username)
	}
	user, ok := o.Registry.View(sid)
	if !ok {
		return nil
	}

	if created := o.Rooms.EnsureRoom(roomID); created {
		log.Info().Str("module", "orch").Str("room", string(roomID)).Str("sid", string(sid)).Msg("auto-host of new room")
		o.admit(sid, roomID)
		return nil
	}

	if o.Rooms.IsParticipant(roomID, sid) {
		// Idempotent re-join: just repeat the snapshot.
		o.sendSnapshot(sid, roomID)
		return nil
	}

	queued := o.Rooms.Enqueue(roomID, domain.JoinRequest{
		UserID:      user.ID,
		Username:    user.Username,
		RequestedAt: time.Now(),
	})
	if !queued {
		return nil
	}
	o.sendTo(sid, WaitingForApproval{Type: EventWaitingForApproval, RoomID: roomID})
	if host, ok := o.Rooms.Host(roomID); ok {
		o.sendTo(host, JoinRequestNotice{
			Type:     EventJoinRequest,
			UserID:   user.ID,
			Username: user.Username,
			RoomID:   roomID,
		})
	}
	return nil
}

// Approve admits a waiting requester. Only the current host may call it;
// anyone else, a vanished request or a vanished requester is a silent
// no-op, since the caller's view may be stale after a migration.
func (o *Orchestrator) Approve(caller core.SessionID, rawRoomID string, target domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	roomID, req, ok := o.takeHostRequest(caller, rawRoomID, target)
	if !ok {
		return
	}
	sid := core.SessionID(req.UserID)
	if _, live := o.Registry.View(sid); !live {
		return
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("user", string(target)).Msg("join approved")
	o.admit(sid, roomID)
}

// Reject removes the request and tells the requester. Same host check
// and silent-no-op rules as Approve; the requester never joins.
func (o *Orchestrator) Reject(caller core.SessionID, rawRoomID string, target domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	roomID, req, ok := o.takeHostRequest(caller, rawRoomID, target)
	if !ok {
		return
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("user", string(target)).Msg("join rejected")
	o.sendTo(core.SessionID(req.UserID), JoinRejected{Type: EventJoinRejected, RoomID: roomID})
}

// takeHostRequest authorizes the caller as host and claims the pending
// request in one go.
func (o *Orchestrator) takeHostRequest(caller core.SessionID, rawRoomID string, target domain.UserID) (domain.RoomID, domain.JoinRequest, bool) {
	roomID, err := domain.NormalizeRoomID(rawRoomID)
	if err != nil {
		return "", domain.JoinRequest{}, false
	}
	host, ok := o.Rooms.Host(roomID)
	if !ok || host != caller {
		return "", domain.JoinRequest{}, false
	}
	req, ok := o.Rooms.TakeRequest(roomID, target)
	if !ok {
		return "", domain.JoinRequest{}, false
	}
	return roomID, req, true
}

// admit makes the session a participant: leaves a previous room first,
// announces the newcomer, sends the snapshot, refreshes presence.
func (o *Orchestrator) admit(sid core.SessionID, roomID domain.RoomID) {
	if prev, ok := o.Registry.RoomOf(sid); ok && prev != roomID {
		if user, ok := o.Registry.View(sid); ok {
			o.Registry.ClearRoom(sid)
			o.departRoom(prev, sid, user)
		}
	}

	// admit is self-contained: seat the session even if the room record
	// is gone, so a stale caller still lands somewhere consistent.
	o.Rooms.EnsureRoom(roomID)
	becameHost, pending := o.Rooms.AddParticipant(roomID, sid)
	o.Registry.SetRoom(sid, roomID)

	user, ok := o.Registry.View(sid)
	if !ok {
		o.Rooms.RemoveParticipant(roomID, sid)
		return
	}

	host, _ := o.Rooms.Host(roomID)
	o.broadcastRoom(roomID, UserJoined{
		Type:     EventUserJoined,
		UserID:   user.ID,
		Username: user.Username,
		Media:    user.Media,
		IsHost:   host == sid,
	}, sid)
	o.sendSnapshot(sid, roomID)
	if becameHost {
		// Requests queued before the room had a host land on the new one.
		for _, req := range pending {
			o.sendTo(sid, JoinRequestNotice{
				Type:     EventJoinRequest,
				UserID:   req.UserID,
				Username: req.Username,
				RoomID:   roomID,
			})
		}
	}
	o.publishPresence(roomID)
}

// sendSnapshot delivers room-joined with the roster minus the receiver.
func (o *Orchestrator) sendSnapshot(sid core.SessionID, roomID domain.RoomID) {
	host, _ := o.Rooms.Host(roomID)
	o.sendTo(sid, RoomJoined{
		Type:         EventRoomJoined,
		RoomID:       roomID,
		Participants: o.roster(roomID, sid),
		IsHost:       host == sid,
	})
}
