package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/app/orch"
	"github.com/avelin/Parley/internal/core"
)

func (ctl *Controller) handleChat(sid core.SessionID, data []byte) {
	type chatPayload struct {
		Type        string `json:"type"`
		Message     string `json:"message"`
		MessageType string `json:"messageType,omitempty"`
		ImageURL    string `json:"imageUrl,omitempty"`
		GifURL      string `json:"gifUrl,omitempty"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		return
	}
	ctl.Orch.Chat(sid, orch.ChatInput{
		Message:     p.Message,
		MessageType: p.MessageType,
		ImageURL:    p.ImageURL,
		GifURL:      p.GifURL,
	})
}
