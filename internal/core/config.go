package core

import (
	"pkt.systems/pslog"

	"pkt.systems/secretd/internal/counter"
	"pkt.systems/secretd/internal/locking"
	"pkt.systems/secretd/internal/record"
)

// Config wires the shared state a Service orchestrates. Record and Counter
// are built from Strategy when nil; when supplied they must use the same
// strategy.
type Config struct {
	Strategy locking.Strategy
	Record   *record.Record
	Counter  *counter.Pair
	Monitor  *locking.Monitor
	Logger   pslog.Logger
}
