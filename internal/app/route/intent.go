// Package route turns inbound text frames into room operations.
//
// Grammar, one command per frame, keywords case-sensitive, single spaces:
//
//	CREATE <room-id>
//	SEND <room-id> <body>
//	JOIN <room-id>
//	LEAVE <room-id>
//
// Anything else is Unrecognized and dropped without a reply.
package route

import "github.com/dkeye/Relay/internal/domain"

// InboundMessage is one frame read from a connection, tagged with the member
// that sent it.
type InboundMessage struct {
	Payload []byte
	Sender  domain.MemberRef
}

// Intent is the classified meaning of a payload. The concrete types below are
// the only implementations.
type Intent interface {
	isIntent()
}

type CreateRoom struct {
	Name domain.RoomID
}

type SendToRoom struct {
	Room domain.RoomID
	Body string
}

type JoinRoom struct {
	Room domain.RoomID
}

type LeaveRoom struct {
	Room domain.RoomID
}

type Unrecognized struct {
	Raw []byte
}

func (CreateRoom) isIntent()   {}
func (SendToRoom) isIntent()   {}
func (JoinRoom) isIntent()     {}
func (LeaveRoom) isIntent()    {}
func (Unrecognized) isIntent() {}
