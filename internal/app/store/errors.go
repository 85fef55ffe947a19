package store

import "errors"

var (
	// ErrLinkNotFound signals that no entry exists for the requested key.
	ErrLinkNotFound = errors.New("link not found")

	// ErrKeyspaceExhausted signals that key generation gave up after the
	// configured number of attempts without finding a free key.
	ErrKeyspaceExhausted = errors.New("key generation exhausted")
)

// FieldErrors carries validation failures attributed to the request fields
// they belong to. The messages are shown to API clients as-is.
type FieldErrors struct {
	Key  string `json:"key,omitempty"`
	Link string `json:"link,omitempty"`
}

func (e *FieldErrors) Error() string {
	switch {
	case e.Key != "" && e.Link != "":
		return e.Key + "; " + e.Link
	case e.Key != "":
		return e.Key
	default:
		return e.Link
	}
}

func (e *FieldErrors) any() bool {
	return e.Key != "" || e.Link != ""
}
