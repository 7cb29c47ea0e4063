package partition

import (
	"errors"
	"fmt"
)

// ErrStore marks failures of the cache store itself, as opposed to a failed
// network fetch. Batch callers tolerate fetch failures but surface store
// failures.
var ErrStore = errors.New("cache store failure")

// AsStoreError wraps err so IsStoreError recognizes it.
func AsStoreError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStore, err)
}

// IsStoreError reports whether err carries the store-failure marker.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}
