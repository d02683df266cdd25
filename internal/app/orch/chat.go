package orch

import (
	"time"

	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

// ChatInput is what the sender's transport hands over. The relay stamps
// everything else.
type ChatInput struct {
	Message     string
	MessageType string
	ImageURL    string
	GifURL      string
}

// Chat broadcasts to the whole room, sender included, so every client
// renders the same server-assigned order and timestamp. Nothing is
// persisted.
func (o *Orchestrator) Chat(sid core.SessionID, in ChatInput) {
	o.mu.Lock()
	defer o.mu.Unlock()
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	user, ok := o.Registry.View(sid)
	if !ok {
		return
	}
	if in.MessageType == "" {
		in.MessageType = "text"
	}
	o.broadcastRoom(roomID, ChatMessage{
		Type:        EventChatMessage,
		UserID:      user.ID,
		Username:    user.Username,
		Message:     in.Message,
		MessageType: in.MessageType,
		ImageURL:    in.ImageURL,
		GifURL:      in.GifURL,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		RoomID:      roomID,
	}, "")
}

// Typing notifies the rest of the room. No debouncing here: the sender
// owns emitting stop-typing eventually.
func (o *Orchestrator) Typing(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	user, ok := o.Registry.View(sid)
	if !ok {
		return
	}
	o.broadcastRoom(roomID, TypingNotice{Type: EventTyping, UserID: user.ID, Username: user.Username}, sid)
}

func (o *Orchestrator) StopTyping(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	o.broadcastRoom(roomID, TypingNotice{Type: EventStopTyping, UserID: domain.UserID(sid)}, sid)
}
