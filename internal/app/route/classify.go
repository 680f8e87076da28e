package route

import (
	"regexp"

	"github.com/dkeye/Relay/internal/domain"
)

// The patterns only split a line into its fields; room ids are checked by
// domain.ParseRoomID.
var (
	createRe = regexp.MustCompile(`^CREATE ([^ ]+)$`)
	sendRe   = regexp.MustCompile(`(?s)^SEND ([^ ]+) (.+)$`)
	joinRe   = regexp.MustCompile(`^JOIN ([^ ]+)$`)
	leaveRe  = regexp.MustCompile(`^LEAVE ([^ ]+)$`)
)

// matchers run in order; the first hit wins, so CREATE always takes
// precedence over SEND.
var matchers = []func([]byte) (Intent, bool){
	func(p []byte) (Intent, bool) {
		id, _, ok := match(createRe, p)
		if !ok {
			return nil, false
		}
		return CreateRoom{Name: id}, true
	},
	func(p []byte) (Intent, bool) {
		id, m, ok := match(sendRe, p)
		if !ok {
			return nil, false
		}
		return SendToRoom{Room: id, Body: string(m[2])}, true
	},
	func(p []byte) (Intent, bool) {
		id, _, ok := match(joinRe, p)
		if !ok {
			return nil, false
		}
		return JoinRoom{Room: id}, true
	},
	func(p []byte) (Intent, bool) {
		id, _, ok := match(leaveRe, p)
		if !ok {
			return nil, false
		}
		return LeaveRoom{Room: id}, true
	},
}

// match applies re and validates its first group as a room id.
func match(re *regexp.Regexp, p []byte) (domain.RoomID, [][]byte, bool) {
	m := re.FindSubmatch(p)
	if m == nil {
		return "", nil, false
	}
	id, err := domain.ParseRoomID(string(m[1]))
	if err != nil {
		return "", nil, false
	}
	return id, m, true
}

// Classify is pure: it never touches rooms or connections.
func Classify(payload []byte) Intent {
	for _, try := range matchers {
		if in, ok := try(payload); ok {
			return in
		}
	}
	return Unrecognized{Raw: payload}
}
