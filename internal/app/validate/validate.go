// Package validate holds the pure syntax checks for link targets and custom
// keys. Nothing here touches storage or the network; uniqueness and blacklist
// policy live with the store.
package validate

import (
	"errors"
	"regexp"
)

const (
	// MinKeyLength is the shortest custom key accepted.
	MinKeyLength = 3
	// MaxKeyLength bounds custom keys against pathological input.
	MaxKeyLength = 64
	// MaxURLLength bounds link targets against pathological input.
	MaxURLLength = 2048
)

var (
	ErrURLEmpty   = errors.New("url is empty")
	ErrURLTooLong = errors.New("url is too long")
	ErrURLInvalid = errors.New("url is not well formed")

	ErrKeyTooShort     = errors.New("key is too short")
	ErrKeyTooLong      = errors.New("key is too long")
	ErrKeyInvalidChars = errors.New("key contains invalid characters")
)

// urlPattern accepts anything shaped like a URL without caring about the
// scheme: optional scheme, optional userinfo, a host (name or IPv6 literal),
// then an optional port and path/query/fragment tail. Every token is length
// bounded. Reachability is never checked.
var urlPattern = regexp.MustCompile(`^(?:[A-Za-z][A-Za-z0-9+.-]{0,15}:(?://)?)?` +
	`(?:[^\s@/?#]{1,64}@)?` +
	`(?:\[[0-9A-Fa-f:.]{2,45}\]|[A-Za-z0-9][A-Za-z0-9.-]{0,252})` +
	`(?::\d{1,5})?` +
	// The tail allows up to 2048 characters, split into chunks because the
	// regexp engine caps a single repeat count at 1000.
	`(?:[/?#][^\s]{0,1000}[^\s]{0,1000}[^\s]{0,48})?$`)

// URL reports whether candidate looks like a usable link target.
func URL(candidate string) error {
	if len(candidate) == 0 {
		return ErrURLEmpty
	}
	if len(candidate) > MaxURLLength {
		return ErrURLTooLong
	}
	if !urlPattern.MatchString(candidate) {
		return ErrURLInvalid
	}
	return nil
}

// Key reports whether candidate is a well-formed custom key: at least
// MinKeyLength characters drawn from a-z, 0-9 and dash.
func Key(candidate string) error {
	if len(candidate) < MinKeyLength {
		return ErrKeyTooShort
	}
	if len(candidate) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for i := 0; i < len(candidate); i++ {
		if !isKeyChar(candidate[i]) {
			return ErrKeyInvalidChars
		}
	}
	return nil
}

func isKeyChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-'
}
