package persist

import "errors"

// ErrNotFound is returned by repo lookups that found no matching row.
var ErrNotFound = errors.New("persist: not found")
