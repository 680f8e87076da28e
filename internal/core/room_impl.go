package core

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is a threadsafe in-memory room: a member set plus a bounded history.
// It never closes adapter-owned resources.
type Room struct {
	id        domain.RoomID
	createdAt time.Time

	mu          sync.Mutex
	members     map[domain.MemberRef]struct{}
	history     []domain.Message
	historySize int
}

func NewRoom(id domain.RoomID, historySize int) *Room {
	return &Room{
		id:          id,
		createdAt:   time.Now(),
		members:     make(map[domain.MemberRef]struct{}),
		historySize: historySize,
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) Info() domain.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomInfo{ID: r.id, MemberCount: len(r.members), CreatedAt: r.createdAt}
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) Has(ref domain.MemberRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[ref]
	return ok
}

// Add reports the member count after the call.
func (r *Room) Add(ref domain.MemberRef) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[ref] = struct{}{}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("member", string(ref)).Msg("member added")
	return len(r.members)
}

// Remove reports the member count after the call and whether ref was present.
func (r *Room) Remove(ref domain.MemberRef) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[ref]
	delete(r.members, ref)
	if ok {
		log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("member", string(ref)).Msg("member removed")
	}
	return len(r.members), ok
}

// Members returns a sorted snapshot.
func (r *Room) Members() []domain.MemberRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MemberRef, 0, len(r.members))
	for ref := range r.members {
		out = append(out, ref)
	}
	slices.Sort(out)
	return out
}

// Publish records msg and hands frame to every member but exclude. The room
// lock is held across delivery, so two publishes to the same room reach each
// member in the order they were published. d must not block.
func (r *Room) Publish(msg domain.Message, frame Frame, exclude domain.MemberRef, d Deliverer) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(msg)

	res := PublishResult{}
	for ref := range r.members {
		if ref == exclude {
			continue
		}
		if err := d.Deliver(ref, frame); err != nil {
			res.Dropped = append(res.Dropped, ref)
			continue
		}
		res.Delivered = append(res.Delivered, ref)
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Int("sent_to", len(res.Delivered)).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Room) record(msg domain.Message) {
	if r.historySize <= 0 {
		return
	}
	r.history = append(r.history, msg)
	if over := len(r.history) - r.historySize; over > 0 {
		r.history = slices.Delete(r.history, 0, over)
	}
}

// History returns a copy of the retained messages, oldest first.
func (r *Room) History() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}
