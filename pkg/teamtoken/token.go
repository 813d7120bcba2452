package teamtoken

import (
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// TokenLength is the exact length of a team token
	TokenLength = 7

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	// ErrInvalidTokenFormat is returned when a presented string cannot be a
	// team token at all. The check runs before any storage access.
	ErrInvalidTokenFormat = errors.New("invalid team token format")

	// ErrInvalidToken is returned for tokens that are well-formed but
	// unknown or superseded by a newer token for the same team.
	ErrInvalidToken = errors.New("invalid team token")

	// ErrNoToken is returned when a team has never generated a token.
	ErrNoToken = errors.New("no token for team")
)

// newToken produces a random 7-character alphanumeric token. Collisions
// with existing tokens are not checked; with 62^7 possible values the
// probability is treated as negligible.
func newToken() (string, error) {
	buf := make([]byte, TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// CheckFormat verifies that a presented string has the shape of a team
// token: non-empty, exactly 7 characters, alphanumeric.
func CheckFormat(token string) error {
	if len(token) != TokenLength {
		return ErrInvalidTokenFormat
	}
	for _, c := range []byte(token) {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return ErrInvalidTokenFormat
		}
	}
	return nil
}
