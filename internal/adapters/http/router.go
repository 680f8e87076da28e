package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/domain"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// cookie session. The WebSocket endpoint uses it as the member ref.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Server.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("RelaySessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.List()})
	})

	api.GET("/rooms/:id", func(c *gin.Context) {
		info, ok := o.Rooms.Get(domain.RoomID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrRoomNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	api.GET("/rooms/:id/history", func(c *gin.Context) {
		msgs, err := o.Rooms.History(domain.RoomID(c.Param("id")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	})

	api.GET("/rooms/:id/members", func(c *gin.Context) {
		members, err := o.Rooms.Members(domain.RoomID(c.Param("id")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	})

	// removes membership only; the peer stays connected
	api.DELETE("/rooms/:id/members/:ref", func(c *gin.Context) {
		err := o.RemoveFromRoom(domain.RoomID(c.Param("id")), domain.MemberRef(c.Param("ref")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	// drops every member and deletes the room; peers stay connected
	api.DELETE("/rooms/:id", func(c *gin.Context) {
		if err := o.EvictRoom(domain.RoomID(c.Param("id"))); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/peers/:ref/rooms", func(c *gin.Context) {
		ref := domain.MemberRef(c.Param("ref"))
		if !o.Peers.Online(ref) {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrNotConnected.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.RoomsOf(ref)})
	})

	// closes the peer's connection; its close hook evicts it everywhere
	api.DELETE("/peers/:ref", func(c *gin.Context) {
		if !o.Kick(domain.MemberRef(c.Param("ref"))) {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrNotConnected.Error()})
			return
		}
		c.Status(http.StatusAccepted)
	})

	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"peers":  o.Peers.Count(),
			"rooms":  len(o.Rooms.List()),
			"router": o.Router.Stats(),
		})
	})

	ctrl := signal.NewSignalWSController(o, cfg.Conn)
	wsPath := cfg.Endpoint.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.GET(wsPath, func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("token", c.GetString(clientTokenKey)).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrNotMember):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
