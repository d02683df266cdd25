package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

type connEntry struct {
	user *domain.User
	conn core.SignalConnection
	room domain.RoomID
}

// Registry owns connection identity: display name, media state and the
// room pointer of every live transport. It never touches room membership.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.SessionID]*connEntry
	total int64
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.SessionID]*connEntry)}
}

// Register binds a fresh transport to its identity. An empty or invalid
// username falls back to a deterministic placeholder.
func (r *Registry) Register(sid core.SessionID, conn core.SignalConnection, username string) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := domain.NewUser(domain.UserID(sid), username)
	r.conns[sid] = &connEntry{user: u, conn: conn}
	r.total++
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("username", u.Username).Msg("registered connection")
	return *u
}

// Unregister discards identity and reports the room the connection was
// in, if any. Calling it twice for the same id is a no-op the second time.
func (r *Registry) Unregister(sid core.SessionID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[sid]
	if !ok {
		return "", false
	}
	delete(r.conns, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unregistered connection")
	return e.room, true
}

func (r *Registry) SetUsername(sid core.SessionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[sid]
	if !ok {
		return nil
	}
	return e.user.SetUsername(name)
}

// MergeMedia applies a partial overwrite and returns the merged state.
func (r *Registry) MergeMedia(sid core.SessionID, delta domain.MediaDelta) (domain.MediaState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[sid]
	if !ok {
		return domain.MediaState{}, false
	}
	e.user.Media = e.user.Media.Apply(delta)
	return e.user.Media, true
}

// View returns a copy of the identity, safe to use after the lock.
func (r *Registry) View(sid core.SessionID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[sid]
	if !ok {
		return domain.User{}, false
	}
	return *e.user, true
}

func (r *Registry) Conn(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[sid]
	if !ok || e.conn == nil {
		return nil, false
	}
	return e.conn, true
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[sid]
	if !ok || e.room == "" {
		return "", false
	}
	return e.room, true
}

func (r *Registry) SetRoom(sid core.SessionID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[sid]; ok {
		e.room = room
	}
}

func (r *Registry) ClearRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[sid]; ok {
		e.room = ""
	}
}

func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) TotalSinceStart() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}
