// Package schema defines the shared entities of the job state store:
// jobs, steps, checkpoints, artifacts, events, and lock leases.
//
// The types here separate the fields the algorithms depend on (status,
// order index, version, timestamps) from opaque caller payloads
// (config, variables, metadata), which are carried as maps and
// persisted as JSON. Checkpoint payloads and artifact checksums use
// the canonical JSON serialization in canonical.go so that identical
// logical snapshots produce identical bytes.
package schema
