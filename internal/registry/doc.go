// Package registry holds the authoritative in-memory state of fleetsync:
// the fleet of registered devices and the typed named values attached to
// them. It is the single source of truth; every mutation arrives through
// the WebSocket message router and every read serves either a response or
// a broadcast.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────┐
//	│                        Registry                            │
//	│                                                            │
//	│  ┌──────────────┐   ┌───────────────┐   ┌──────────────┐   │
//	│  │   Registry   │   │   Validation  │   │    Ident     │   │
//	│  │ (registry.go)│──▶│(validation.go)│   │  (ident.go)  │   │
//	│  │              │   │               │   │              │   │
//	│  │ • CRUD ops   │   │ • name bounds │   │ • UUID ids   │   │
//	│  │ • dirty flag │   │ • value types │   │ • device key │   │
//	│  │ • snapshots  │   │ • coercion    │   │   derivation │   │
//	│  └──────────────┘   └───────────────┘   └──────────────┘   │
//	└────────────────────────────────────────────────────────────┘
//
// # Concurrency
//
// A single mutex serialises every operation, so read-modify-write
// sequences (find-then-mutate by id) cannot interleave across
// connections. All operations are in-memory and never block; durable
// flushing runs off the critical path in the storage package, driven by
// the dirty flag exposed here.
//
// # Deletion semantics
//
// Deleting a device does not remove its values. Orphaned values stay in
// the registry and keep their device_id; OrphanValues exposes them for
// cleanup tooling.
package registry
