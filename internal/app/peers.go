package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type peerEntry struct {
	Sender core.Sender
	Cancel context.CancelFunc
}

// Peers is the connection table: MemberRef -> live transport. Rooms only
// hold refs and look them up here at delivery time.
type Peers struct {
	mu    sync.RWMutex
	peers map[domain.MemberRef]*peerEntry
}

func NewPeers() *Peers {
	return &Peers{peers: make(map[domain.MemberRef]*peerEntry)}
}

func (p *Peers) Bind(ref domain.MemberRef, s core.Sender, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[ref] = &peerEntry{Sender: s, Cancel: cancel}
	log.Info().Str("module", "app.peers").Str("member", string(ref)).Msg("bound peer")
}

// BindIfAbsent binds ref only when nothing is bound to it yet, and reports
// whether it did.
func (p *Peers) BindIfAbsent(ref domain.MemberRef, s core.Sender, cancel context.CancelFunc) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.peers[ref]; ok {
		return false
	}
	p.peers[ref] = &peerEntry{Sender: s, Cancel: cancel}
	log.Info().Str("module", "app.peers").Str("member", string(ref)).Msg("bound peer")
	return true
}

func (p *Peers) Unbind(ref domain.MemberRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.peers[ref]; !ok {
		return
	}
	delete(p.peers, ref)
	log.Info().Str("module", "app.peers").Str("member", string(ref)).Msg("unbound peer")
}

func (p *Peers) Get(ref domain.MemberRef) (core.Sender, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.peers[ref]; ok {
		return e.Sender, true
	}
	return nil, false
}

func (p *Peers) Online(ref domain.MemberRef) bool {
	_, ok := p.Get(ref)
	return ok
}

func (p *Peers) Deliver(ref domain.MemberRef, f core.Frame) error {
	s, ok := p.Get(ref)
	if !ok {
		return domain.ErrNotConnected
	}
	return s.Send(f)
}

func (p *Peers) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.peers)
}

// Cancel asks the owner of ref to shut its connection down.
func (p *Peers) Cancel(ref domain.MemberRef) bool {
	p.mu.RLock()
	e, ok := p.peers[ref]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.peers").Str("member", string(ref)).Msg("canceled peer")
	return true
}

func (p *Peers) CancelAll() {
	p.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(p.peers))
	for _, e := range p.peers {
		if e.Cancel != nil {
			cancels = append(cancels, e.Cancel)
		}
	}
	p.mu.RUnlock()
	for _, c := range cancels {
		c()
	}
}
