package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

func (ctl *Controller) handleMediaState(sid core.SessionID, data []byte) {
	type mediaPayload struct {
		Type     string `json:"type"`
		Muted    *bool  `json:"muted,omitempty"`
		VideoOff *bool  `json:"videoOff,omitempty"`
	}
	var p mediaPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad media payload")
		return
	}
	ctl.Orch.MediaChanged(sid, domain.MediaDelta{Muted: p.Muted, VideoOff: p.VideoOff})
}
