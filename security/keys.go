package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-relay/internal/util"
)

// ErrNoAPIKeys is returned when a key set would accept nothing
var ErrNoAPIKeys = errors.New("no API keys configured")

// bcryptPrefixes mark configured entries that are bcrypt hashes
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// KeySet is the immutable set of API keys the relay accepts, both on the
// WebSocket handshake and on retrieval. Entries are either plain keys or
// bcrypt hashes produced by `oauth-relay hash-key`.
type KeySet struct {
	plain  [][sha256.Size]byte
	hashed [][]byte
}

// NewKeySet builds a key set. Entries are trimmed and empty ones dropped.
func NewKeySet(keys []string) (*KeySet, error) {
	s := &KeySet{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if IsHashedKey(k) {
			if _, err := bcrypt.Cost([]byte(k)); err != nil {
				return nil, fmt.Errorf("invalid bcrypt key hash: %w", err)
			}
			s.hashed = append(s.hashed, []byte(k))
			continue
		}
		s.plain = append(s.plain, sha256.Sum256([]byte(k)))
	}

	if s.Len() == 0 {
		return nil, ErrNoAPIKeys
	}
	return s, nil
}

// Contains reports whether key is accepted. Plain entries are all compared
// in constant time over their digests, so timing does not reveal which entry
// matched or how much of it.
func (s *KeySet) Contains(key string) bool {
	if key == "" {
		return false
	}

	digest := sha256.Sum256([]byte(key))
	match := 0
	for i := range s.plain {
		match |= subtle.ConstantTimeCompare(digest[:], s.plain[i][:])
	}
	if match == 1 {
		return true
	}

	for _, h := range s.hashed {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// Len returns the number of configured entries
func (s *KeySet) Len() int {
	return len(s.plain) + len(s.hashed)
}

// IsHashedKey reports whether a configured entry is a bcrypt hash
func IsHashedKey(k string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

// HashKey returns a bcrypt hash of key suitable for API_KEYS.
// A cost of 0 uses bcrypt.DefaultCost.
func HashKey(key string, cost int) (string, error) {
	if key == "" {
		return "", errors.New("key cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// ParseKeyList splits a comma-separated key list
func ParseKeyList(s string) []string {
	return util.SplitList(s)
}
