// Package domain contains entities without transport logic.
package domain

import "time"

const MaxRoomIDLen = 36

// RoomID is both the room's name and its identity.
type RoomID string

// ParseRoomID checks that s is a usable room token: 1..36 characters out of
// letters, digits, '_', '-' and '.'.
func ParseRoomID(s string) (RoomID, error) {
	if len(s) == 0 || len(s) > MaxRoomIDLen {
		return "", ErrInvalidRoomID
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return "", ErrInvalidRoomID
		}
	}
	return RoomID(s), nil
}

// Message is one entry of a room's history.
type Message struct {
	ID   string    `json:"id"`
	Room RoomID    `json:"room"`
	From MemberRef `json:"from"`
	Body string    `json:"body"`
	At   time.Time `json:"at"`
}

// RoomInfo is a read-only view of a room, safe to hand to APIs.
type RoomInfo struct {
	ID          RoomID    `json:"id"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}
