// Package cache memoizes node outputs under a content address.
//
// A Key is three independent hashes: the node's input data, the node's code
// (operator name, version and canonical config) and the host environment.
// Any of them changing yields a different key, so stale results are never
// served; old entries are simply no longer looked up.
//
// Cache wraps a pluggable Store with single-flight semantics: concurrent
// lookups for the same key run the computation once. A store that fails is
// never fatal. Its errors surface as warnings and the value is computed
// directly.
package cache
