package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avelin/Parley/internal/app/orch"
	"github.com/avelin/Parley/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, sid core.SessionID, c *wsConn) {
	ping := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid core.SessionID, c *wsConn) {
	defer log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")

	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	deadline := ctl.Cfg.PingPeriod + ctl.Cfg.PingPeriod/2
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	limiter := NewJoinRateLimiter(ctl.Cfg.JoinRateLimit, ctl.Cfg.JoinRateInterval)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.dispatch(sid, c, limiter, data)
		}
	}
}

func (ctl *Controller) dispatch(sid core.SessionID, c *wsConn, limiter *JoinRateLimiter, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch env.Type {
	case orch.EventRequestJoin:
		ctl.handleRequestJoin(sid, c, limiter, data)
	case orch.EventApproveJoin:
		ctl.handleApprove(sid, data)
	case orch.EventRejectJoin:
		ctl.handleReject(sid, data)
	case orch.EventWebRTCOffer:
		ctl.handleOffer(sid, data)
	case orch.EventWebRTCAnswer:
		ctl.handleAnswer(sid, data)
	case orch.EventWebRTCCandidate:
		ctl.handleCandidate(sid, data)
	case orch.EventChatMessage:
		ctl.handleChat(sid, data)
	case orch.EventTyping:
		ctl.Orch.Typing(sid)
	case orch.EventStopTyping:
		ctl.Orch.StopTyping(sid)
	case orch.EventMediaState:
		ctl.handleMediaState(sid, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, msg string) {
	ctl.sendJSON(c, struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{orch.EventError, msg})
}
