// Package credential hashes and verifies passwords with argon2id.
//
// A single salt is shared by every digest produced by a Hasher. The salt is
// loaded from configuration once at startup and never mutated.
package credential

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// MinSaltLength is the shortest salt accepted by argon2.
const MinSaltLength = 8

var (
	// ErrHashFailed indicates the digest could not be computed.
	ErrHashFailed = errors.New("credential: hash failed")
	// ErrMalformedDigest indicates a stored digest could not be decoded.
	ErrMalformedDigest = errors.New("credential: malformed digest")
)

// Params tunes the argon2id cost.
type Params struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultParams are the argon2 reference defaults.
var DefaultParams = Params{Memory: 4096, Time: 3, Threads: 1, KeyLen: 32}

// Hasher computes salted argon2id digests.
type Hasher struct {
	salt   []byte
	params Params
}

// NewHasher constructs a Hasher bound to the process-wide salt.
func NewHasher(salt string, params Params) *Hasher {
	return &Hasher{salt: []byte(salt), params: params}
}

// Hash returns the PHC encoded digest for plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if h == nil {
		return "", ErrHashFailed
	}
	key, err := derive(plaintext, h.salt, h.params)
	if err != nil {
		return "", err
	}
	return encode(h.salt, h.params, key), nil
}

// Verify reports whether plaintext matches digest. Any decoding problem is
// reported as a mismatch.
func (h *Hasher) Verify(plaintext, digest string) bool {
	salt, params, want, err := decode(digest)
	if err != nil {
		return false
	}
	got, err := derive(plaintext, salt, params)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

// Dummy performs a full hash and discards the result. Login calls it for
// unknown accounts so both failure paths do the same work.
func (h *Hasher) Dummy(plaintext string) {
	_, _ = h.Hash(plaintext)
}

func derive(plaintext string, salt []byte, p Params) ([]byte, error) {
	if len(salt) < MinSaltLength {
		return nil, fmt.Errorf("%w: salt shorter than %d bytes", ErrHashFailed, MinSaltLength)
	}
	if p.Memory == 0 || p.Time == 0 || p.Threads == 0 || p.KeyLen == 0 {
		return nil, fmt.Errorf("%w: invalid parameters", ErrHashFailed)
	}
	if p.Memory < 8*uint32(p.Threads) {
		return nil, fmt.Errorf("%w: memory below 8*threads", ErrHashFailed)
	}
	return argon2.IDKey([]byte(plaintext), salt, p.Time, p.Memory, p.Threads, p.KeyLen), nil
}

func encode(salt []byte, p Params, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

func decode(digest string) ([]byte, Params, []byte, error) {
	parts := strings.Split(digest, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, Params{}, nil, ErrMalformedDigest
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, Params{}, nil, ErrMalformedDigest
	}
	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return nil, Params{}, nil, ErrMalformedDigest
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, Params{}, nil, ErrMalformedDigest
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, Params{}, nil, ErrMalformedDigest
	}
	p.KeyLen = uint32(len(key))
	return salt, p, key, nil
}
