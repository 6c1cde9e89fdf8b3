package redisession

import (
	"github.com/google/uuid"

	"github.com/jhfangying/RedisSessionHandler/internal"
)

// IDGenerator produces new, unpredictable session identifiers.
type IDGenerator interface {
	Generate() (string, error)
}

// RandomGenerator mints 128-bit crypto/rand identifiers encoded as compact
// base64url tokens. It is the default generator.
type RandomGenerator struct{}

// Generate returns a fresh random identifier.
func (RandomGenerator) Generate() (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

// UUIDGenerator mints canonical UUIDv4 identifiers. Useful when session IDs
// must be debuggable or correlated with other UUID-keyed systems.
type UUIDGenerator struct{}

// Generate returns a fresh UUIDv4 string.
func (UUIDGenerator) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
