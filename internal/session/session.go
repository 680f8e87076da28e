// Package session is the public face of one outbound chat connection: it
// validates the address, owns the Connection and routes its frames through
// an orchestrator.
package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/adapters/ws"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type ChatSession struct {
	ref  domain.MemberRef
	conn *ws.Connection
	orch *orch.Orchestrator
}

type settings struct {
	cfg  *config.Config
	orch *orch.Orchestrator
}

type Option func(*settings)

// WithConfig replaces config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithOrchestrator shares rooms with other sessions. By default every
// session gets a private one.
func WithOrchestrator(o *orch.Orchestrator) Option {
	return func(s *settings) { s.orch = o }
}

// New validates address before anything touches the network. An invalid
// address yields domain.ErrInvalidAddress and no session.
func New(address string, opts ...Option) (*ChatSession, error) {
	st := settings{}
	for _, opt := range opts {
		opt(&st)
	}
	if st.cfg == nil {
		st.cfg = config.Default()
	}
	if st.orch == nil {
		st.orch = orch.New(st.cfg.Rooms)
	}

	ep, err := domain.NewEndpoint(address, domain.EndpointOptions{
		Scheme:         st.cfg.Endpoint.Scheme,
		Port:           st.cfg.Endpoint.Port,
		Path:           st.cfg.Endpoint.Path,
		AllowHostnames: st.cfg.Endpoint.AllowHostnames,
	})
	if err != nil {
		return nil, err
	}

	s := &ChatSession{
		ref:  domain.NewMemberRef(),
		conn: ws.NewConnection(ep, ws.OptionsFromConfig(st.cfg.Conn)),
		orch: st.orch,
	}
	s.conn.OnFrame(s.onFrame)
	// bound before the dial so frames arriving right after the handshake can
	// join rooms; a refused Connect never gets this far
	s.conn.OnDial(func() { s.orch.Attach(s.ref, s.conn, func() { go s.Disconnect() }) })
	s.conn.OnClose(func() { s.orch.Detach(s.ref) })
	return s, nil
}

func (s *ChatSession) onFrame(f core.Frame) {
	out := s.orch.OnFrame(s.ref, f)
	if out.Reply == nil {
		return
	}
	if err := s.conn.Send(out.Reply); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("member", string(s.ref)).Msg("reply dropped")
	}
}

// Connect returns once the handshake has succeeded or failed. Use Done and
// Err to learn when and why the connection ends.
func (s *ChatSession) Connect(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		if errors.Is(err, domain.ErrConnectFailed) {
			s.orch.Peers.Unbind(s.ref)
		}
		return err
	}
	log.Info().Str("module", "session").Str("member", string(s.ref)).Str("endpoint", s.conn.Endpoint().String()).Msg("session open")
	return nil
}

func (s *ChatSession) Disconnect() error {
	return s.conn.Disconnect()
}

// Send writes a raw line to the remote side.
func (s *ChatSession) Send(line string) error {
	return s.conn.Send(core.Frame(line))
}

func (s *ChatSession) Done() <-chan struct{}            { return s.conn.Done() }
func (s *ChatSession) Err() error                       { return s.conn.Err() }
func (s *ChatSession) State() ws.State                  { return s.conn.State() }
func (s *ChatSession) Ref() domain.MemberRef            { return s.ref }
func (s *ChatSession) Endpoint() domain.Endpoint        { return s.conn.Endpoint() }
func (s *ChatSession) Orchestrator() *orch.Orchestrator { return s.orch }
