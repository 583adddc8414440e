// Package record defines the unit of data that flows through a pipeline.
//
// A Record is an optional identifier, a JSON-like payload and a metadata map
// where operators stash derived fields (scores, flags, detected language).
// Records are treated as values: helpers that change a record return a new
// one and never touch the receiver's nested maps.
//
// A Batch is an ordered sequence of records. Batch.Clone is used whenever one
// producer feeds more than one consumer, so no two running nodes ever share a
// mutable view of the same data.
package record
