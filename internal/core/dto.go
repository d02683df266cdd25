package core

import "github.com/avelin/Parley/internal/domain"

// ParticipantDTO is a read-only roster entry for APIs (no transport fields).
type ParticipantDTO struct {
	UserID   domain.UserID     `json:"userId"`
	Username string            `json:"username"`
	Media    domain.MediaState `json:"mediaState"`
	IsHost   bool              `json:"isHost"`
}

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []SessionID
}
