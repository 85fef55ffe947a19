// Package keygen produces the random keys handed out when a caller does not
// bring their own.
package keygen

import (
	"crypto/rand"
	"fmt"
)

// Alphabet is the fixed character set for generated keys. Lowercase only, so
// keys survive case-insensitive channels unchanged.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength is used when a non-positive length is requested.
const DefaultLength = 7

// Generator produces random short-link keys. Implementations must be safe
// for concurrent use.
type Generator interface {
	Generate(length int) (string, error)
}

type randomGenerator struct{}

// New returns a Generator backed by crypto/rand.
func New() Generator {
	return randomGenerator{}
}

func (randomGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("keygen: read random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}
