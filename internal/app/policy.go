package app

import "github.com/dkeye/Relay/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose delivery failed.
type Policy interface {
	OnBackPressure(room domain.RoomID, member domain.MemberRef) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, domain.MemberRef) BackpressureAction {
	return KickMember
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(room domain.RoomID, member domain.MemberRef) BackpressureAction

func (f PolicyFunc) OnBackPressure(room domain.RoomID, member domain.MemberRef) BackpressureAction {
	return f(room, member)
}
