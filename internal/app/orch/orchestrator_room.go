package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// AttachUnique binds s under preferred when that ref is free and under a
// fresh ref otherwise, in one step, and returns the ref it used.
func (o *Orchestrator) AttachUnique(preferred domain.MemberRef, s core.Sender, cancel context.CancelFunc) domain.MemberRef {
	if preferred != "" && o.Peers.BindIfAbsent(preferred, s, cancel) {
		return preferred
	}
	for {
		ref := domain.NewMemberRef()
		if o.Peers.BindIfAbsent(ref, s, cancel) {
			return ref
		}
	}
}

// Attach makes ref reachable for deliveries. cancel is what Kick uses to end
// the connection.
func (o *Orchestrator) Attach(ref domain.MemberRef, s core.Sender, cancel context.CancelFunc) {
	o.Peers.Bind(ref, s, cancel)
}

// Detach is the close hook of every connection. The ref is unbound before it
// is evicted so no Join can re-add it in between.
func (o *Orchestrator) Detach(ref domain.MemberRef) {
	o.Peers.Unbind(ref)
	o.Rooms.Evict(ref)
	if o.Limiter != nil {
		o.Limiter.Forget(ref)
	}
	log.Info().Str("module", "orch").Str("member", string(ref)).Msg("detached")
}

// Kick asks the connection behind ref to close. Its close hook detaches it.
func (o *Orchestrator) Kick(ref domain.MemberRef) bool {
	return o.Peers.Cancel(ref)
}

// RemoveFromRoom drops ref from one room and leaves its connection open.
func (o *Orchestrator) RemoveFromRoom(id domain.RoomID, ref domain.MemberRef) error {
	ok, err := o.Rooms.IsMember(id, ref)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotMember
	}
	o.Rooms.Leave(id, ref)
	log.Info().Str("module", "orch").Str("room", string(id)).Str("member", string(ref)).Msg("removed from room")
	return nil
}

// EvictRoom deletes a room and drops all of its members from it. Their
// connections stay open.
func (o *Orchestrator) EvictRoom(id domain.RoomID) error {
	members, err := o.Rooms.Delete(id)
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("room", string(id)).Int("members", len(members)).Msg("room evicted")
	return nil
}
