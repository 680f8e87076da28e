package route

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// Rooms is the part of the room registry the router mutates.
type Rooms interface {
	Create(id domain.RoomID, founders ...domain.MemberRef) (domain.RoomInfo, error)
	Join(id domain.RoomID, ref domain.MemberRef) (int, error)
	Leave(id domain.RoomID, ref domain.MemberRef)
	IsMember(id domain.RoomID, ref domain.MemberRef) (bool, error)
	Broadcast(id domain.RoomID, from domain.MemberRef, body string, exclude domain.MemberRef) ([]domain.MemberRef, error)
}

// Outbound is what a dispatch produced. Reply is nil when the sender gets
// nothing back; Delivered lists the members a SEND reached.
type Outbound struct {
	Reply     core.Frame
	Delivered []domain.MemberRef
}

// Limiter throttles CREATE per member.
type Limiter interface {
	Allow(ref domain.MemberRef) bool
}

type Options struct {
	// EchoToSender includes the sender in its own SEND broadcasts.
	EchoToSender bool
	// CreateLimiter is optional; nil means unlimited.
	CreateLimiter Limiter
}

type Stats struct {
	Created      int64 `json:"created"`
	Sent         int64 `json:"sent"`
	Joined       int64 `json:"joined"`
	Left         int64 `json:"left"`
	Rejected     int64 `json:"rejected"`
	Unrecognized int64 `json:"unrecognized"`
}

type Router struct {
	rooms Rooms
	opts  Options

	created, sent, joined, left, rejected, unrecognized atomic.Int64
}

func NewRouter(rooms Rooms, opts Options) *Router {
	return &Router{rooms: rooms, opts: opts}
}

// Handle classifies and dispatches one inbound frame. Frames from a single
// connection must be handed in arrival order.
func (r *Router) Handle(msg InboundMessage) Outbound {
	return r.Dispatch(Classify(msg.Payload), msg.Sender)
}

// Dispatch applies intent on behalf of sender. Failures are turned into ERR
// replies; nothing here ends the sender's connection.
func (r *Router) Dispatch(intent Intent, sender domain.MemberRef) Outbound {
	switch in := intent.(type) {
	case CreateRoom:
		return r.create(in, sender)
	case SendToRoom:
		return r.send(in, sender)
	case JoinRoom:
		return r.join(in, sender)
	case LeaveRoom:
		r.rooms.Leave(in.Room, sender)
		r.left.Add(1)
		return Outbound{Reply: left(in.Room)}
	case Unrecognized:
		// Replying would loop forever between two relays, since every reply
		// line is itself unrecognized on the other side.
		r.unrecognized.Add(1)
		log.Debug().Str("module", "route").Str("member", string(sender)).Int("bytes", len(in.Raw)).Msg("dropped unrecognized frame")
		return Outbound{}
	default:
		r.unrecognized.Add(1)
		return Outbound{}
	}
}

func (r *Router) create(in CreateRoom, sender domain.MemberRef) Outbound {
	if r.opts.CreateLimiter != nil && !r.opts.CreateLimiter.Allow(sender) {
		r.rejected.Add(1)
		log.Warn().Str("module", "route").Str("member", string(sender)).Msg("create rate limited")
		return Outbound{Reply: errLine(CodeRateLimited, in.Name)}
	}
	if _, err := r.rooms.Create(in.Name, sender); err != nil {
		return r.reject(err, in.Name, sender)
	}
	r.created.Add(1)
	return Outbound{Reply: created(in.Name)}
}

func (r *Router) send(in SendToRoom, sender domain.MemberRef) Outbound {
	member, err := r.rooms.IsMember(in.Room, sender)
	if err != nil {
		return r.reject(err, in.Room, sender)
	}
	if !member {
		return r.reject(domain.ErrNotMember, in.Room, sender)
	}
	exclude := sender
	if r.opts.EchoToSender {
		exclude = ""
	}
	delivered, err := r.rooms.Broadcast(in.Room, sender, in.Body, exclude)
	if err != nil {
		return r.reject(err, in.Room, sender)
	}
	r.sent.Add(1)
	return Outbound{Delivered: delivered}
}

func (r *Router) join(in JoinRoom, sender domain.MemberRef) Outbound {
	n, err := r.rooms.Join(in.Room, sender)
	if err != nil {
		return r.reject(err, in.Room, sender)
	}
	r.joined.Add(1)
	return Outbound{Reply: joined(in.Room, n)}
}

func (r *Router) reject(err error, id domain.RoomID, sender domain.MemberRef) Outbound {
	r.rejected.Add(1)
	log.Debug().Str("module", "route").Str("room", string(id)).Str("member", string(sender)).Err(err).Msg("rejected")
	switch {
	case errors.Is(err, domain.ErrRoomAlreadyExists):
		return Outbound{Reply: errLine(CodeRoomExists, id)}
	case errors.Is(err, domain.ErrRoomNotFound):
		return Outbound{Reply: errLine(CodeRoomNotFound, id)}
	case errors.Is(err, domain.ErrNotMember):
		return Outbound{Reply: errLine(CodeNotMember, id)}
	default:
		// the sender is already gone; there is nobody to reply to
		return Outbound{}
	}
}

func (r *Router) Stats() Stats {
	return Stats{
		Created:      r.created.Load(),
		Sent:         r.sent.Load(),
		Joined:       r.joined.Load(),
		Left:         r.left.Load(),
		Rejected:     r.rejected.Load(),
		Unrecognized: r.unrecognized.Load(),
	}
}
