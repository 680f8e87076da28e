package orch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type inbox struct {
	mu     sync.Mutex
	frames []string
}

func (i *inbox) Send(f core.Frame) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.frames = append(i.frames, string(f))
	return nil
}

func roomsConfig() config.RoomsConfig {
	return config.RoomsConfig{DeleteEmpty: true, HistorySize: 20, CreateLimit: 5, CreateInterval: time.Minute}
}

func TestOrchestrator_DetachEvicts(t *testing.T) {
	req := require.New(t)
	o := New(roomsConfig())
	o.Attach("alice", &inbox{}, nil)
	o.Attach("bob", &inbox{}, nil)

	req.Equal("CREATED lobby", string(o.OnFrame("alice", core.Frame("CREATE lobby")).Reply))
	req.Equal("JOINED lobby 2", string(o.OnFrame("bob", core.Frame("JOIN lobby")).Reply))

	o.Detach("alice")
	req.False(o.Peers.Online("alice"))
	members, err := o.Rooms.Members("lobby")
	req.NoError(err)
	req.Equal([]domain.MemberRef{"bob"}, members)

	// a detached ref cannot come back through JOIN
	out := o.OnFrame("alice", core.Frame("JOIN lobby"))
	req.Nil(out.Reply)
	members, err = o.Rooms.Members("lobby")
	req.NoError(err)
	req.Equal([]domain.MemberRef{"bob"}, members)
}

func TestOrchestrator_Kick(t *testing.T) {
	req := require.New(t)
	o := New(roomsConfig())

	kicked := false
	o.Attach("alice", &inbox{}, func() { kicked = true })
	req.True(o.Kick("alice"))
	req.True(kicked)
	req.False(o.Kick("nobody"))
}

func TestOrchestrator_RemoveFromRoom(t *testing.T) {
	req := require.New(t)
	cfg := roomsConfig()
	cfg.DeleteEmpty = false
	o := New(cfg)
	o.Attach("alice", &inbox{}, nil)
	o.Attach("bob", &inbox{}, nil)
	o.OnFrame("alice", core.Frame("CREATE lobby"))
	o.OnFrame("bob", core.Frame("JOIN lobby"))

	req.NoError(o.RemoveFromRoom("lobby", "bob"))
	req.ErrorIs(o.RemoveFromRoom("lobby", "bob"), domain.ErrNotMember)
	req.ErrorIs(o.RemoveFromRoom("nowhere", "bob"), domain.ErrRoomNotFound)
	req.True(o.Peers.Online("bob"))

	req.NoError(o.EvictRoom("lobby"))
	_, ok := o.Rooms.Get("lobby")
	req.False(ok)
	req.Empty(o.Rooms.RoomsOf("alice"))
	req.True(o.Peers.Online("alice"))
	req.ErrorIs(o.EvictRoom("lobby"), domain.ErrRoomNotFound)
}

func TestOrchestrator_AttachUnique(t *testing.T) {
	req := require.New(t)
	o := New(roomsConfig())

	req.Equal(domain.MemberRef("tab"), o.AttachUnique("tab", &inbox{}, nil))
	other := o.AttachUnique("tab", &inbox{}, nil)
	req.NotEqual(domain.MemberRef("tab"), other)
	req.NotEmpty(other)
	req.NotEmpty(o.AttachUnique("", &inbox{}, nil))
	req.Equal(3, o.Peers.Count())
}

func TestOrchestrator_AttachUniqueConcurrent(t *testing.T) {
	o := New(roomsConfig())
	const n = 32
	refs := make([]domain.MemberRef, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs[i] = o.AttachUnique("shared", &inbox{}, nil)
		}()
	}
	wg.Wait()

	require.Equal(t, n, o.Peers.Count())
	require.Contains(t, refs, domain.MemberRef("shared"))
	seen := make(map[domain.MemberRef]bool, n)
	for _, ref := range refs {
		require.False(t, seen[ref], "ref %s handed out twice", ref)
		seen[ref] = true
	}
}
