package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxRoomIDLen = 64

var ErrRoomIDEmpty = errors.New("room id empty")

type RoomID string

// NormalizeRoomID trims, lowercases and bounds a caller-supplied room id.
func NormalizeRoomID(raw string) (RoomID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		// Back up to a rune boundary so the cut never leaves a partial
		// UTF-8 sequence behind.
		cut := MaxRoomIDLen
		for cut > 0 && !utf8.RuneStart(id[cut]) {
			cut--
		}
		if cut == 0 {
			return "", ErrRoomIDEmpty
		}
		id = id[:cut]
	}
	return RoomID(strings.ToLower(id)), nil
}

// JoinRequest is one entry in a room's waiting list.
type JoinRequest struct {
	UserID      UserID
	Username    string
	RequestedAt time.Time
}
