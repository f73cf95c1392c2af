package core

import (
	"github.com/rs/xid"

	"pkt.systems/secretd/internal/locking"
	"pkt.systems/secretd/internal/record"
)

// Handle is an open session. It carries no shared mutable state and refers
// to its Service without owning it. The zero Handle is never valid.
type Handle struct {
	id  xid.ID
	svc *Service
}

// ID returns the session identifier.
func (h Handle) ID() xid.ID {
	return h.id
}

// IsZero reports whether h was never returned by Open.
func (h Handle) IsZero() bool {
	return h.svc == nil || h.id.IsNil()
}

func (h Handle) String() string {
	if h.IsZero() {
		return "session(none)"
	}
	return h.id.String()
}

// Stats merges the record, counter and session views.
type Stats struct {
	Strategy     locking.Strategy
	Record       record.Stats
	GA           int64
	GB           int64
	OpenSessions int
	Violations   int
}
