// Package auth issues and checks the API key that guards the mint endpoints.
// Only an argon2id hash of the key is ever configured on the server.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// params are the argon2id cost settings carried in a PHC string.
type params struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// defaultParams follow the OWASP minimum for argon2id.
var defaultParams = params{memory: 64 * 1024, time: 3, threads: 4}

// Upper bounds accepted from a configured hash, so a typo in
// MINT_API_KEY_HASH cannot make each verification allocate gigabytes.
const (
	maxMemoryKiB = 1 << 20
	maxTime      = 10
	saltLen      = 16
	keyLen       = 32
	minKeyLen    = 16
)

var b64 = base64.RawStdEncoding

type phcHash struct {
	params
	salt []byte
	key  []byte
}

func (h *phcHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads, b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func (h *phcHash) matches(key string) bool {
	got := argon2.IDKey([]byte(key), h.salt, h.time, h.memory, h.threads, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(got, h.key) == 1
}

// HashKey hashes key with a fresh salt and returns the PHC string
// "$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>".
func HashKey(key string) (string, error) {
	h := &phcHash{params: defaultParams, salt: make([]byte, saltLen)}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	h.key = argon2.IDKey([]byte(key), h.salt, h.time, h.memory, h.threads, keyLen)
	return h.String(), nil
}

// VerifyKey checks key against a PHC string in constant time.
func VerifyKey(key, encodedHash string) (bool, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return h.matches(key), nil
}

func parsePHC(s string) (*phcHash, error) {
	// Leading "$" yields an empty first field.
	f := strings.Split(s, "$")
	if len(f) != 6 || f[0] != "" || f[1] != "argon2id" {
		return nil, ErrInvalidHash
	}

	v, ok := strings.CutPrefix(f[2], "v=")
	if !ok {
		return nil, ErrInvalidHash
	}
	if version, err := strconv.Atoi(v); err != nil {
		return nil, ErrInvalidHash
	} else if version != argon2.Version {
		return nil, ErrIncompatibleVersion
	}

	h := &phcHash{}
	if err := h.params.parse(f[3]); err != nil {
		return nil, err
	}

	var err error
	if h.salt, err = b64.DecodeString(f[4]); err != nil || len(h.salt) == 0 {
		return nil, ErrInvalidHash
	}
	if h.key, err = b64.DecodeString(f[5]); err != nil || len(h.key) < minKeyLen {
		return nil, ErrInvalidHash
	}
	return h, nil
}

// parse reads "m=<KiB>,t=<iterations>,p=<threads>" in that order.
func (p *params) parse(s string) error {
	want := [...]string{"m", "t", "p"}
	fields := strings.Split(s, ",")
	if len(fields) != len(want) {
		return ErrInvalidHash
	}
	var vals [3]uint64
	for i, field := range fields {
		name, raw, ok := strings.Cut(field, "=")
		if !ok || name != want[i] {
			return ErrInvalidHash
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || n == 0 {
			return ErrInvalidHash
		}
		vals[i] = n
	}
	if vals[0] > maxMemoryKiB || vals[1] > maxTime || vals[2] > 255 {
		return fmt.Errorf("%w: argon2 cost out of range", ErrInvalidHash)
	}
	p.memory, p.time, p.threads = uint32(vals[0]), uint32(vals[1]), uint8(vals[2])
	return nil
}

// KeyVerifier checks presented keys against the configured hash. A key that
// verified once is remembered by its SHA-256 so argon2 runs once per key
// rather than once per request.
type KeyVerifier struct {
	hash *phcHash

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewKeyVerifier fails on a malformed hash, so a bad MINT_API_KEY_HASH stops
// startup instead of locking every mint out.
func NewKeyVerifier(encodedHash string) (*KeyVerifier, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return nil, err
	}
	return &KeyVerifier{hash: h, verified: make(map[[sha256.Size]byte]struct{})}, nil
}

func (v *KeyVerifier) Verify(key string) bool {
	if !ValidateKeyFormat(key) {
		return false
	}
	digest := sha256.Sum256([]byte(key))

	v.mu.RLock()
	_, seen := v.verified[digest]
	v.mu.RUnlock()
	if seen {
		return true
	}
	if !v.hash.matches(key) {
		return false
	}

	v.mu.Lock()
	v.verified[digest] = struct{}{}
	v.mu.Unlock()
	return true
}
