// Package lock provides named leases backed by spin locks. Each key maps to
// its own spin.Mutex, so holders of different keys never contend. Leases can
// have an optional TTL: when it elapses the lease is reclaimed by force
// unlocking the key, which lets a new holder in even if the previous one never
// comes back. Every acquisition increments a per-key fencing token.
package lock
