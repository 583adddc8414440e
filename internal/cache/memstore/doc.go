// Package memstore provides an ephemeral, thread-safe, in-memory
// implementation of the cache.Store interface.
//
// # Characteristics
//
//   - **Ephemeral:** Lives as long as the handle; nothing is persisted.
//   - **Thread-Safe:** Uses sync.Map for fine-grained concurrent access.
//   - **Isolated:** Entries are deep-cloned on Put and Get, so callers can
//     never mutate what another run will read.
//
// # Concurrency Model
//
// sync.Map suits the workload: keys are written once and read many times,
// and different nodes touch disjoint keys. Racing writers on the same key are
// serialized one level up by the Cache's single-flight group.
//
// Every Store is an independent handle. Tests and concurrent pipelines that
// need isolation simply create their own.
package memstore
