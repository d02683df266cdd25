package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

// SignalKind selects which negotiation payload a relayed envelope carries.
type SignalKind int

const (
	SignalOffer SignalKind = iota
	SignalAnswer
	SignalCandidate
)

// RelaySignal forwards an opaque negotiation blob to one target session,
// injecting the sender id so the target can correlate the peer link.
// A dead target is dropped without a word: teardown races are normal,
// not failures. The payload is never parsed.
func (o *Orchestrator) RelaySignal(from core.SessionID, target domain.UserID, kind SignalKind, payload json.RawMessage) {
	if target == "" || len(payload) == 0 {
		return
	}
	sid := core.SessionID(target)
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		log.Debug().Str("module", "orch").Str("target", string(target)).Msg("relay target gone, dropping")
		return
	}

	env := SignalEnvelope{FromUserID: domain.UserID(from)}
	switch kind {
	case SignalOffer:
		env.Type = EventWebRTCOffer
		env.Offer = payload
	case SignalAnswer:
		env.Type = EventWebRTCAnswer
		env.Answer = payload
	case SignalCandidate:
		env.Type = EventWebRTCCandidate
		env.Candidate = payload
	default:
		return
	}

	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal relay envelope")
		return
	}
	if err := conn.TrySend(b); err != nil {
		o.onSlow(sid, conn)
	}
}
