package route

import (
	"fmt"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// Error codes carried in "ERR <code> <room-id>" replies.
const (
	CodeRoomExists   = "ROOM_EXISTS"
	CodeRoomNotFound = "ROOM_NOT_FOUND"
	CodeNotMember    = "NOT_MEMBER"
	CodeRateLimited  = "RATE_LIMITED"
)

func created(id domain.RoomID) core.Frame {
	return core.Frame("CREATED " + string(id))
}

func joined(id domain.RoomID, members int) core.Frame {
	return core.Frame(fmt.Sprintf("JOINED %s %d", id, members))
}

func left(id domain.RoomID) core.Frame {
	return core.Frame("LEFT " + string(id))
}

func errLine(code string, id domain.RoomID) core.Frame {
	return core.Frame("ERR " + code + " " + string(id))
}

// RenderMessage is the frame room members receive for a SEND:
// "MSG <room-id> <from> <body>".
func RenderMessage(m domain.Message) core.Frame {
	return core.Frame("MSG " + string(m.Room) + " " + m.From.Short() + " " + m.Body)
}
