package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

func (ctl *Controller) handleRequestJoin(
	sid core.SessionID,
	conn *wsConn,
	limiter *JoinRateLimiter,
	data []byte,
) {
	type joinPayload struct {
		Type     string `json:"type"`
		RoomID   string `json:"roomId"`
		Username string `json:"username,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !limiter.Allow() {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join request rate limited")
		ctl.sendError(conn, "too many join requests")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Msg("join requested")
	if err := ctl.Orch.RequestJoin(sid, p.RoomID, p.Username); err != nil {
		ctl.sendError(conn, "invalid room id")
	}
}

func (ctl *Controller) handleApprove(sid core.SessionID, data []byte) {
	p, ok := decodeHostAction(data)
	if !ok {
		return
	}
	ctl.Orch.Approve(sid, p.RoomID, domain.UserID(p.UserID))
}

func (ctl *Controller) handleReject(sid core.SessionID, data []byte) {
	p, ok := decodeHostAction(data)
	if !ok {
		return
	}
	ctl.Orch.Reject(sid, p.RoomID, domain.UserID(p.UserID))
}

type hostActionPayload struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// Host actions from a stale UI are expected; malformed ones are dropped
// without a reply, same as unauthorized ones.
func decodeHostAction(data []byte) (hostActionPayload, bool) {
	var p hostActionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad host action payload")
		return p, false
	}
	if p.RoomID == "" || p.UserID == "" {
		return p, false
	}
	return p, true
}
