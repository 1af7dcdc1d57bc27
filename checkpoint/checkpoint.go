// Package checkpoint persists the per-input cursor: the highest record id that
// has been handed to the event sink for an (input, category) pair.
package checkpoint

import (
	"context"
	"encoding/base64"

	"github.com/marcelsud/tower-poller/input"
)

//go:generate mockery --name Store --output ./mocks --outpkg mocks

type Reader interface {
	// Get returns the stored cursor, or 0 when nothing was committed yet
	Get(ctx context.Context, inputName string, category input.Category) (int64, error)
}

type Writer interface {
	// Set commits cursor atomically. A cursor lower than the stored one is ignored.
	Set(ctx context.Context, inputName string, category input.Category, cursor int64) error
}

/* Store is implemented by every backend
 * Implementations must be safe for concurrent use by several runners
 */
type Store interface {
	Reader
	Writer
	Close(ctx context.Context) error
}

// Key derives the storage key of an input. Input names may contain
// characters that are not valid in file names or redis keys.
func Key(inputName string) string {
	return base64.URLEncoding.EncodeToString([]byte(inputName))
}

// GetError wraps a backend read failure
func GetError(err error) error {
	return &input.PersistenceError{Op: "get", Err: err}
}

// SetError wraps a backend write failure
func SetError(err error) error {
	return &input.PersistenceError{Op: "set", Err: err}
}
