// Package orch serializes every state transition of the call service:
// admission, presence, relaying and the disconnect cascade.
package orch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/app"
	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomStore
	Policy   app.Policy

	// RequestTTL bounds how long a join request may sit in a waiting
	// list; zero disables expiry.
	RequestTTL time.Duration

	// mu serializes every state transition across registry and rooms,
	// so a compound move (leave one room, enter another) is a single
	// critical section. Sends are non-blocking, so holding it across
	// fan-out never stalls on a peer.
	mu sync.Mutex
}

// Connect registers a fresh transport under its session id.
func (o *Orchestrator) Connect(sid core.SessionID, conn core.SignalConnection, username string) domain.User {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Registry.Register(sid, conn, username)
}

// Disconnect is the one cleanup path and must stay idempotent: it wins
// over any in-flight operation referencing the session.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	user, hadUser := o.Registry.View(sid)
	roomID, ok := o.Registry.Unregister(sid)
	if !ok {
		return
	}
	o.Rooms.PurgeRequester(domain.UserID(sid))
	if roomID != "" && hadUser {
		o.departRoom(roomID, sid, user)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("disconnected")
}

// departRoom removes the session from the room and tells the survivors:
// who left, who hosts now, and the refreshed roster.
func (o *Orchestrator) departRoom(roomID domain.RoomID, sid core.SessionID, user domain.User) {
	dep := o.Rooms.RemoveParticipant(roomID, sid)
	if !dep.Removed {
		return
	}
	o.broadcastRoom(roomID, UserLeft{Type: EventUserLeft, UserID: user.ID, Username: user.Username}, sid)
	if dep.Deleted {
		return
	}
	if dep.NewHost != "" {
		o.sendTo(dep.NewHost, YouAreHost{Type: EventYouAreHost})
		for _, req := range dep.Pending {
			o.sendTo(dep.NewHost, JoinRequestNotice{
				Type:     EventJoinRequest,
				UserID:   req.UserID,
				Username: req.Username,
				RoomID:   roomID,
			})
		}
	}
	o.publishPresence(roomID)
}

// RunJanitor periodically drops waiting-list entries older than
// RequestTTL, auto-rejecting the requester.
func (o *Orchestrator) RunJanitor(ctx context.Context, interval time.Duration) {
	if o.RequestTTL <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			o.SweepWaiting(now)
		}
	}
}

func (o *Orchestrator) SweepWaiting(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.RequestTTL <= 0 {
		return
	}
	for _, exp := range o.Rooms.ExpireWaiting(now.Add(-o.RequestTTL)) {
		log.Info().Str("module", "orch").Str("room", string(exp.Room)).Str("user", string(exp.Request.UserID)).Msg("join request expired")
		o.sendTo(core.SessionID(exp.Request.UserID), JoinRejected{Type: EventJoinRejected, RoomID: exp.Room})
	}
}

// sendTo marshals and delivers to one session; a full buffer is handed
// to the policy, a dead session is silently skipped.
func (o *Orchestrator) sendTo(sid core.SessionID, v any) {
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal outbound event")
		return
	}
	if err := conn.TrySend(b); err != nil {
		o.onSlow(sid, conn)
	}
}

// broadcastRoom fans an event out to current participants, marshaling
// once. Sends are non-blocking; slow peers go through the policy.
func (o *Orchestrator) broadcastRoom(roomID domain.RoomID, v any, except core.SessionID) core.PublishResult {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal broadcast event")
		return core.PublishResult{}
	}
	res := core.PublishResult{}
	for _, sid := range o.Rooms.Participants(roomID) {
		if sid == except {
			continue
		}
		conn, ok := o.Registry.Conn(sid)
		if !ok {
			continue
		}
		if err := conn.TrySend(b); err != nil {
			res.Dropped = append(res.Dropped, sid)
			o.onSlow(sid, conn)
			continue
		}
		res.SentTo++
	}
	return res
}

func (o *Orchestrator) onSlow(sid core.SessionID, conn core.SignalConnection) {
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("send buffer full")
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackpressure(sid) {
	case app.KickMember:
		// Closing the transport makes the read pump exit, which runs
		// the regular disconnect cascade.
		conn.Close()
	case app.NoAction, app.DropFrame:
	}
}
