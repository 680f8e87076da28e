package app

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type RegistryOptions struct {
	// DeleteEmpty removes a room once its last member leaves or is evicted.
	// When false rooms live for the lifetime of the process.
	DeleteEmpty bool
	HistorySize int
	Policy      Policy
	// Render turns a room message into the frame members receive.
	Render func(domain.Message) core.Frame
}

func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		DeleteEmpty: true,
		HistorySize: 20,
		Policy:      SimplePolicy{},
	}
}

// RoomRegistry maps RoomID -> Room and is the only place membership changes.
//
// Lock order: registry mu, then the room's own lock, then whatever the
// Deliverer takes. Create/Leave/Evict hold mu exclusively so duplicate
// detection and empty-room deletion are atomic; Join/Broadcast hold it shared
// so rooms cannot be deleted underneath them.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room

	peers core.Deliverer
	opts  RegistryOptions
}

func NewRoomRegistry(peers core.Deliverer, opts RegistryOptions) *RoomRegistry {
	if opts.Policy == nil {
		opts.Policy = SimplePolicy{}
	}
	if opts.Render == nil {
		opts.Render = func(m domain.Message) core.Frame { return core.Frame(m.Body) }
	}
	return &RoomRegistry{
		rooms: make(map[domain.RoomID]*core.Room),
		peers: peers,
		opts:  opts,
	}
}

// Create registers a new room and joins founders to it in the same step.
func (r *RoomRegistry) Create(id domain.RoomID, founders ...domain.MemberRef) (domain.RoomInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; ok {
		return domain.RoomInfo{}, domain.ErrRoomAlreadyExists
	}
	room := core.NewRoom(id, r.opts.HistorySize)
	for _, ref := range founders {
		if r.peers.Online(ref) {
			room.Add(ref)
		}
	}
	r.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Int("members", room.MemberCount()).Msg("room created")
	return room.Info(), nil
}

// Join reports the member count after joining. Refs that are no longer bound
// to a live connection are refused so a closing connection cannot slip back in.
func (r *RoomRegistry) Join(id domain.RoomID, ref domain.MemberRef) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	if !r.peers.Online(ref) {
		return 0, domain.ErrNotConnected
	}
	n := room.Add(ref)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("member", string(ref)).Msg("joined")
	return n, nil
}

func (r *RoomRegistry) Leave(id domain.RoomID, ref domain.MemberRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(id, ref)
}

func (r *RoomRegistry) leaveLocked(id domain.RoomID, ref domain.MemberRef) {
	room, ok := r.rooms[id]
	if !ok {
		return
	}
	left, removed := room.Remove(ref)
	if !removed {
		return
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("member", string(ref)).Msg("left")
	if left == 0 && r.opts.DeleteEmpty {
		delete(r.rooms, id)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("empty room deleted")
	}
}

// Evict removes ref from every room. Connections call it on their way out of
// the Open state.
func (r *RoomRegistry) Evict(ref domain.MemberRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.rooms {
		r.leaveLocked(id, ref)
	}
}

// Broadcast records body in the room's history and delivers it to every
// member except exclude. It returns the members that accepted the frame.
func (r *RoomRegistry) Broadcast(id domain.RoomID, from domain.MemberRef, body string, exclude domain.MemberRef) ([]domain.MemberRef, error) {
	r.mu.RLock()
	room, ok := r.rooms[id]
	if !ok {
		r.mu.RUnlock()
		return nil, domain.ErrRoomNotFound
	}
	msg := domain.Message{
		ID:   ulid.Make().String(),
		Room: id,
		From: from,
		Body: body,
		At:   time.Now(),
	}
	res := room.Publish(msg, r.opts.Render(msg), exclude, r.peers)
	r.mu.RUnlock()

	for _, slow := range res.Dropped {
		switch r.opts.Policy.OnBackPressure(id, slow) {
		case KickMember:
			log.Warn().Str("module", "app.rooms").Str("room", string(id)).Str("member", string(slow)).Msg("kicking member after failed delivery")
			r.Leave(id, slow)
		case DropFrame, NoAction:
		}
	}
	return res.Delivered, nil
}

// Delete removes a room outright and returns the members it had.
func (r *RoomRegistry) Delete(id domain.RoomID) ([]domain.MemberRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	delete(r.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted")
	return room.Members(), nil
}

func (r *RoomRegistry) IsMember(id domain.RoomID, ref domain.MemberRef) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	return room.Has(ref), nil
}

func (r *RoomRegistry) Get(id domain.RoomID) (domain.RoomInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return domain.RoomInfo{}, false
	}
	return room.Info(), true
}

// List returns every live room ordered by id.
func (r *RoomRegistry) List() []domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.MapToSlice(r.rooms, func(_ domain.RoomID, room *core.Room) domain.RoomInfo {
		return room.Info()
	})
	slices.SortFunc(out, func(a, b domain.RoomInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *RoomRegistry) Members(id domain.RoomID) ([]domain.MemberRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room.Members(), nil
}

// RoomsOf returns the ids of every room ref belongs to, ordered.
func (r *RoomRegistry) RoomsOf(ref domain.MemberRef) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := lo.Filter(lo.Keys(r.rooms), func(id domain.RoomID, _ int) bool {
		return r.rooms[id].Has(ref)
	})
	slices.Sort(ids)
	return ids
}

func (r *RoomRegistry) History(id domain.RoomID) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room.History(), nil
}
