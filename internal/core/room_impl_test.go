package core_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/mocks"
)

func msg(room domain.RoomID, from domain.MemberRef, body string) domain.Message {
	return domain.Message{ID: body, Room: room, From: from, Body: body, At: time.Now()}
}

func TestRoom_AddRemove(t *testing.T) {
	req := require.New(t)
	room := core.NewRoom("lobby", 5)

	req.Equal(1, room.Add("alice"))
	req.Equal(2, room.Add("bob"))
	req.Equal(2, room.Add("bob"))
	req.True(room.Has("alice"))
	req.Equal([]domain.MemberRef{"alice", "bob"}, room.Members())

	left, ok := room.Remove("alice")
	req.True(ok)
	req.Equal(1, left)

	left, ok = room.Remove("alice")
	req.False(ok)
	req.Equal(1, left)

	info := room.Info()
	req.Equal(domain.RoomID("lobby"), info.ID)
	req.Equal(1, info.MemberCount)
	req.False(info.CreatedAt.IsZero())
}

func TestRoom_Publish_ExcludesSender(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDeliverer(ctrl)
	req := require.New(t)

	room := core.NewRoom("lobby", 5)
	room.Add("alice")
	room.Add("bob")
	room.Add("carol")

	frame := core.Frame("MSG lobby alice hi")
	d.EXPECT().Deliver(domain.MemberRef("bob"), frame).Return(nil)
	d.EXPECT().Deliver(domain.MemberRef("carol"), frame).Return(domain.ErrBackpressure)

	res := room.Publish(msg("lobby", "alice", "hi"), frame, "alice", d)
	req.Equal([]domain.MemberRef{"bob"}, res.Delivered)
	req.Equal([]domain.MemberRef{"carol"}, res.Dropped)
}

func TestRoom_Publish_AloneDeliversToNoOne(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDeliverer(ctrl)

	room := core.NewRoom("lobby", 5)
	room.Add("alice")

	d.EXPECT().Deliver(gomock.Any(), gomock.Any()).Times(0)

	res := room.Publish(msg("lobby", "alice", "hi"), core.Frame("x"), "alice", d)
	require.Empty(t, res.Delivered)
	require.Empty(t, res.Dropped)
}

func TestRoom_HistoryIsBounded(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDeliverer(ctrl)
	req := require.New(t)

	room := core.NewRoom("lobby", 3)
	for i := range 5 {
		room.Publish(msg("lobby", "alice", fmt.Sprintf("m%d", i)), core.Frame("x"), "alice", d)
	}

	h := room.History()
	req.Len(h, 3)
	req.Equal("m2", h[0].Body)
	req.Equal("m4", h[2].Body)

	// a copy, not the backing slice
	h[0].Body = "changed"
	req.Equal("m2", room.History()[0].Body)
}

func TestRoom_HistoryDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDeliverer(ctrl)

	room := core.NewRoom("lobby", 0)
	room.Publish(msg("lobby", "alice", "hi"), core.Frame("x"), "alice", d)
	require.Empty(t, room.History())
}
