package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/app/orch"
	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

// Negotiation payloads stay opaque end to end: decoded only far enough
// to find the target, then forwarded untouched.

type signalPayload struct {
	Type         string          `json:"type"`
	TargetUserID string          `json:"targetUserId"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

func decodeSignal(data []byte) (signalPayload, bool) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad signaling payload")
		return p, false
	}
	return p, true
}

func (ctl *Controller) handleOffer(sid core.SessionID, data []byte) {
	p, ok := decodeSignal(data)
	if !ok {
		return
	}
	ctl.Orch.RelaySignal(sid, domain.UserID(p.TargetUserID), orch.SignalOffer, p.Offer)
}

func (ctl *Controller) handleAnswer(sid core.SessionID, data []byte) {
	p, ok := decodeSignal(data)
	if !ok {
		return
	}
	ctl.Orch.RelaySignal(sid, domain.UserID(p.TargetUserID), orch.SignalAnswer, p.Answer)
}

func (ctl *Controller) handleCandidate(sid core.SessionID, data []byte) {
	p, ok := decodeSignal(data)
	if !ok {
		return
	}
	ctl.Orch.RelaySignal(sid, domain.UserID(p.TargetUserID), orch.SignalCandidate, p.Candidate)
}
