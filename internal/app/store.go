package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

// room keeps participants in explicit insertion order so that host
// succession is deterministic.
type room struct {
	id        domain.RoomID
	order     []core.SessionID
	members   map[core.SessionID]struct{}
	host      core.SessionID
	waiting   []domain.JoinRequest
	createdAt time.Time
}

// RoomStore owns room objects and their waiting lists. Every method is
// one critical section over in-memory state; it never performs I/O, so
// callers fan out notifications after the method returns.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[domain.RoomID]*room)}
}

// EnsureRoom creates the room if unknown and reports whether it did.
func (s *RoomStore) EnsureRoom(id domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; ok {
		return false
	}
	s.rooms[id] = &room{
		id:        id,
		members:   make(map[core.SessionID]struct{}),
		createdAt: time.Now(),
	}
	log.Info().Str("module", "app.store").Str("room", string(id)).Msg("room created")
	return true
}

// AddParticipant appends the connection to the room, purging any waiting
// entry it had. If the room has no host the newcomer becomes host; the
// returned flag reports that, and pending carries the waiting requests
// the fresh host now presides over, mirroring Departure.Pending.
func (s *RoomStore) AddParticipant(id domain.RoomID, sid core.SessionID) (host bool, pending []domain.JoinRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return false, nil
	}
	if _, in := r.members[sid]; !in {
		r.members[sid] = struct{}{}
		r.order = append(r.order, sid)
	}
	r.dropWaiting(domain.UserID(sid))
	if r.host == "" {
		r.host = sid
		pending = append(pending, r.waiting...)
	}
	log.Info().Str("module", "app.store").Str("room", string(id)).Str("sid", string(sid)).Bool("host", r.host == sid).Msg("participant added")
	return r.host == sid, pending
}

// Departure is the snapshot a participant removal leaves behind, computed
// atomically so the caller can notify without re-reading state.
type Departure struct {
	Removed bool
	WasHost bool
	NewHost core.SessionID
	// Pending requests to re-deliver to the new host.
	Pending []domain.JoinRequest
	Deleted bool
}

// RemoveParticipant takes the connection out of the room. When the host
// leaves and others remain, the earliest-joined survivor becomes host.
// An emptied room is deleted together with its waiting list.
func (s *RoomStore) RemoveParticipant(id domain.RoomID, sid core.SessionID) Departure {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return Departure{}
	}
	if _, in := r.members[sid]; !in {
		return Departure{}
	}
	delete(r.members, sid)
	for i, v := range r.order {
		if v == sid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	dep := Departure{Removed: true, WasHost: r.host == sid}
	if len(r.members) == 0 {
		delete(s.rooms, id)
		dep.Deleted = true
		log.Info().Str("module", "app.store").Str("room", string(id)).Msg("room deleted (empty)")
		return dep
	}
	if dep.WasHost {
		r.host = r.order[0]
		dep.NewHost = r.host
		dep.Pending = append(dep.Pending, r.waiting...)
		log.Info().Str("module", "app.store").Str("room", string(id)).Str("new_host", string(r.host)).Int("pending", len(dep.Pending)).Msg("host migrated")
	}
	return dep
}

func (s *RoomStore) Host(id domain.RoomID) (core.SessionID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok || r.host == "" {
		return "", false
	}
	return r.host, true
}

func (s *RoomStore) IsParticipant(id domain.RoomID, sid core.SessionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return false
	}
	_, in := r.members[sid]
	return in
}

// Participants returns the membership in join order.
func (s *RoomStore) Participants(id domain.RoomID) []core.SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil
	}
	out := make([]core.SessionID, len(r.order))
	copy(out, r.order)
	return out
}

// Enqueue adds a join request unless one is already pending for the same
// connection. Returns false on the duplicate.
func (s *RoomStore) Enqueue(id domain.RoomID, req domain.JoinRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return false
	}
	for _, w := range r.waiting {
		if w.UserID == req.UserID {
			return false
		}
	}
	r.waiting = append(r.waiting, req)
	log.Info().Str("module", "app.store").Str("room", string(id)).Str("user", string(req.UserID)).Msg("join request queued")
	return true
}

// TakeRequest removes and returns the pending request for the user.
func (s *RoomStore) TakeRequest(id domain.RoomID, uid domain.UserID) (domain.JoinRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return domain.JoinRequest{}, false
	}
	for i, w := range r.waiting {
		if w.UserID == uid {
			r.waiting = append(r.waiting[:i], r.waiting[i+1:]...)
			return w, true
		}
	}
	return domain.JoinRequest{}, false
}

// PurgeRequester drops the user's request from every waiting list.
func (s *RoomStore) PurgeRequester(uid domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		r.dropWaiting(uid)
	}
}

// ExpiredRequest names a waiting-list entry removed by the sweep.
type ExpiredRequest struct {
	Room    domain.RoomID
	Request domain.JoinRequest
}

// ExpireWaiting removes every request older than cutoff.
func (s *RoomStore) ExpireWaiting(cutoff time.Time) []ExpiredRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ExpiredRequest
	for _, r := range s.rooms {
		kept := r.waiting[:0]
		for _, w := range r.waiting {
			if w.RequestedAt.Before(cutoff) {
				out = append(out, ExpiredRequest{Room: r.id, Request: w})
				continue
			}
			kept = append(kept, w)
		}
		r.waiting = kept
	}
	return out
}

// Exists reports presence and participant count for the operator API.
func (s *RoomStore) Exists(id domain.RoomID) (bool, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return false, 0
	}
	return true, len(r.members)
}

// Stats returns active room and participant totals.
func (s *RoomStore) Stats() (rooms, participants int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		participants += len(r.members)
	}
	return len(s.rooms), participants
}

func (r *room) dropWaiting(uid domain.UserID) {
	for i, w := range r.waiting {
		if w.UserID == uid {
			r.waiting = append(r.waiting[:i], r.waiting[i+1:]...)
			return
		}
	}
}
