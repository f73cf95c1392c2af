// Package secretd exposes an in-process shared secret record guarded by a
// pluggable locking strategy. Many sessions open, read, write and close the
// record concurrently; the interesting part is how the record and the
// ga/gb session counters stay consistent under each strategy, and what
// happens when a holder of a spin lock suspends.
//
// # Running a server
//
//	srv, err := secretd.NewServer(secretd.Config{Strategy: "spin"})
//	if err != nil { log.Fatal(err) }
//	defer srv.Shutdown(context.Background())
//
//	h := srv.Open(ctx)
//	if _, err := srv.Write(ctx, h, []byte("initmsg\x00")); err != nil { ... }
//	secret, err := srv.Read(ctx, h, srv.Capacity())
//	_ = srv.Close(ctx, h)
//
// Reads must request at least Config.Capacity bytes. Writes longer than the
// capacity are rejected; the stored secret ends at the first NUL and keeps at
// most Capacity-1 bytes, while the received-bytes counter grows by the full
// write length.
//
// # Strategies
//
// "blocking" guards the record and the counters with sync.Mutex and copies
// out while holding the lock. "spin" uses busy-wait spin locks and keeps
// every copy to or from caller memory outside the critical section.
// "atomic" keeps the counters lock-free and guards only the secret bytes
// with a spin lock.
//
// # Fault injection
//
// Config.InjectFault makes every write sleep for Config.FaultDelay while the
// record guard is held. Under the spin strategies the locking monitor flags
// this as a contract violation; with ViolationPolicy "panic" the offending
// call panics after releasing its lock.
//
// # Telemetry
//
// Packages emit otel metrics and spans through the global providers.
// Config.MetricsListen serves them for Prometheus, Config.OTLPEndpoint
// exports traces and Config.PprofListen exposes net/http/pprof. All three are
// off by default.
package secretd
