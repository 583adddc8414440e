package cache

import "fmt"

// CacheError reports a store failure. It never aborts a run: the Cache falls
// back to computing the value and hands the error back as a warning.
type CacheError struct {
	Op  string
	Key Key
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key.String(), e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
