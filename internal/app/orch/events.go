package orch

import (
	"encoding/json"

	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

// Wire event names, shared by inbound dispatch and outbound emission.
const (
	EventError              = "error"
	EventRequestJoin        = "request-join-room"
	EventApproveJoin        = "approve-join-request"
	EventRejectJoin         = "reject-join-request"
	EventWaitingForApproval = "waiting-for-approval"
	EventJoinRequest        = "join-request"
	EventRoomJoined         = "room-joined"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventJoinRejected       = "join-rejected"
	EventYouAreHost         = "you-are-host"
	EventParticipantList    = "participant-list-update"
	EventWebRTCOffer        = "webrtc-offer"
	EventWebRTCAnswer       = "webrtc-answer"
	EventWebRTCCandidate    = "webrtc-ice-candidate"
	EventChatMessage        = "chat-message"
	EventTyping             = "typing"
	EventStopTyping         = "stop-typing"
	EventMediaState         = "media-state-change"
	EventMediaStateChanged  = "user-media-state-change"
)

type WaitingForApproval struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type JoinRequestNotice struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	RoomID   domain.RoomID `json:"roomId"`
}

type RoomJoined struct {
	Type         string                `json:"type"`
	RoomID       domain.RoomID         `json:"roomId"`
	Participants []core.ParticipantDTO `json:"participants"`
	IsHost       bool                  `json:"isHost"`
}

type UserJoined struct {
	Type     string            `json:"type"`
	UserID   domain.UserID     `json:"userId"`
	Username string            `json:"username"`
	Media    domain.MediaState `json:"mediaState"`
	IsHost   bool              `json:"isHost"`
}

type UserLeft struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type JoinRejected struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type YouAreHost struct {
	Type string `json:"type"`
}

type ParticipantList struct {
	Type         string                `json:"type"`
	Participants []core.ParticipantDTO `json:"participants"`
}

// SignalEnvelope carries a relayed negotiation blob. Exactly one of the
// payload fields is set, matching the event name.
type SignalEnvelope struct {
	Type       string          `json:"type"`
	FromUserID domain.UserID   `json:"fromUserId"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

type ChatMessage struct {
	Type        string        `json:"type"`
	UserID      domain.UserID `json:"userId"`
	Username    string        `json:"username"`
	Message     string        `json:"message"`
	MessageType string        `json:"messageType"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	GifURL      string        `json:"gifUrl,omitempty"`
	Timestamp   string        `json:"timestamp"`
	RoomID      domain.RoomID `json:"roomId"`
}

type TypingNotice struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username,omitempty"`
}

// MediaStateChanged forwards the raw delta, sender id attached.
type MediaStateChanged struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Muted    *bool         `json:"muted,omitempty"`
	VideoOff *bool         `json:"videoOff,omitempty"`
}
