package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// A mint key reads mk_<env>_<prefix>_<secret>, for example
// mk_live_7a9x3k_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b. The prefix is safe to log;
// the secret never leaves the caller.
const (
	keyScheme = "mk"

	KeyPrefixLen = 6
	KeySecretLen = 32
)

const (
	EnvLive = "live"
	EnvTest = "test"
)

var ErrInvalidKeyFormat = errors.New("invalid API key format")

// ParsedKey is a mint key split into its parts.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

func (k ParsedKey) String() string {
	return strings.Join([]string{keyScheme, k.Env, k.Prefix, k.Secret}, "_")
}

// GeneratedKey is a freshly minted key. Plaintext is shown to the operator
// once; only Hash is configured on the server.
type GeneratedKey struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// GenerateMintKey creates a key and its argon2id hash. Any env other than
// EnvTest yields a live key.
func GenerateMintKey(env string) (*GeneratedKey, error) {
	if env != EnvTest {
		env = EnvLive
	}

	raw := make([]byte, (KeyPrefixLen+KeySecretLen)/2)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("read random key material: %w", err)
	}
	enc := hex.EncodeToString(raw)
	key := ParsedKey{Env: env, Prefix: enc[:KeyPrefixLen], Secret: enc[KeyPrefixLen:]}

	plaintext := key.String()
	hash, err := HashKey(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}
	return &GeneratedKey{Plaintext: plaintext, Hash: hash, Prefix: key.Prefix}, nil
}

// ParseKey splits a plaintext key, rejecting anything not produced by
// GenerateMintKey.
func ParseKey(key string) (*ParsedKey, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 4 || parts[0] != keyScheme {
		return nil, ErrInvalidKeyFormat
	}
	k := ParsedKey{Env: parts[1], Prefix: parts[2], Secret: parts[3]}
	if k.Env != EnvLive && k.Env != EnvTest {
		return nil, ErrInvalidKeyFormat
	}
	if !lowerHex(k.Prefix, KeyPrefixLen) || !lowerHex(k.Secret, KeySecretLen) {
		return nil, ErrInvalidKeyFormat
	}
	return &k, nil
}

// ValidateKeyFormat reports whether ParseKey would accept key.
func ValidateKeyFormat(key string) bool {
	_, err := ParseKey(key)
	return err == nil
}

func lowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
