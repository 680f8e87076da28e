package domain

import "github.com/google/uuid"

// MemberRef names a participating connection. Rooms hold refs only; the
// connection itself lives in the peers table and may disappear at any time.
type MemberRef string

func NewMemberRef() MemberRef {
	return MemberRef(uuid.NewString())
}

// Short is a compact form used in relayed lines.
func (m MemberRef) Short() string {
	if len(m) > 8 {
		return string(m[:8])
	}
	return string(m)
}
