// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
)

const (
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// MediaState mirrors the client's local devices as last reported.
type MediaState struct {
	Muted    bool `json:"muted"`
	VideoOff bool `json:"videoOff"`
}

// MediaDelta is a partial update: only non-nil fields overwrite.
type MediaDelta struct {
	Muted    *bool `json:"muted,omitempty"`
	VideoOff *bool `json:"videoOff,omitempty"`
}

func (s MediaState) Apply(d MediaDelta) MediaState {
	if d.Muted != nil {
		s.Muted = *d.Muted
	}
	if d.VideoOff != nil {
		s.VideoOff = *d.VideoOff
	}
	return s
}

func (d MediaDelta) Empty() bool {
	return d.Muted == nil && d.VideoOff == nil
}

type User struct {
	ID       UserID     `json:"id"`
	Username string     `json:"username"`
	Media    MediaState `json:"mediaState"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, username string) *User {
	u := &User{ID: id}
	if err := u.SetUsername(username); err != nil {
		u.Username = DefaultUsername(id)
	}
	return u
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}

// DefaultUsername derives a stable placeholder from the connection id.
func DefaultUsername(id UserID) string {
	short := string(id)
	if len(short) > 6 {
		short = short[:6]
	}
	return fmt.Sprintf("User-%s", short)
}
