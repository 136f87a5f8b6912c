package store

// SessionStore persists small per-user session values across runs, in the
// spirit of a browser's local storage. Values are opaque strings.
type SessionStore interface {
	// Get returns the value for key, or empty when unset.
	Get(key string) (string, error)

	// Set writes the value for key.
	Set(key, value string) error

	// Delete removes key.
	Delete(key string) error

	// Close releases the underlying store.
	Close() error
}

// Well-known session keys.
const (
	KeyLastRoom = "last_room"
	KeyToken    = "token"
	KeyClientID = "client_id"
)
