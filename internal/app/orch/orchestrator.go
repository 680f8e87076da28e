package orch

import (
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/route"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// Orchestrator ties the connection table, the rooms and the router together.
// Both accepted peers and outbound sessions attach to one.
type Orchestrator struct {
	Peers   *app.Peers
	Rooms   *app.RoomRegistry
	Router  *route.Router
	Limiter *app.RateLimiter
}

func New(cfg config.RoomsConfig) *Orchestrator {
	peers := app.NewPeers()
	rooms := app.NewRoomRegistry(peers, app.RegistryOptions{
		DeleteEmpty: cfg.DeleteEmpty,
		HistorySize: cfg.HistorySize,
		Policy:      app.SimplePolicy{},
		Render:      route.RenderMessage,
	})
	limiter := app.NewRateLimiter(cfg.CreateLimit, cfg.CreateInterval)
	router := route.NewRouter(rooms, route.Options{
		EchoToSender:  cfg.EchoToSender,
		CreateLimiter: limiter,
	})
	return &Orchestrator{
		Peers:   peers,
		Rooms:   rooms,
		Router:  router,
		Limiter: limiter,
	}
}

// OnFrame routes one inbound frame from ref. The caller sends the reply, if
// any, back on the same connection.
func (o *Orchestrator) OnFrame(ref domain.MemberRef, data core.Frame) route.Outbound {
	return o.Router.Handle(route.InboundMessage{Payload: data, Sender: ref})
}
