// Package password implements argon2id password hashing and verification
// using the PHC string format.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Hashing parameters. Changing these only affects newly created hashes;
// verification reads the parameters back out of the encoded string.
const (
	memory      = 64 * 1024
	iterations  = 1
	parallelism = 4
	saltLength  = 16
	keyLength   = 32
)

const (
	// MinLength is the minimum password length in bytes after trimming.
	MinLength = 10
	// MaxLength is the maximum password length in bytes after trimming.
	MaxLength = 256
)

// ErrHashFormat is returned when a stored hash cannot be parsed.
var ErrHashFormat = errors.New("password: malformed hash encoding")

// ErrTooShort and ErrTooLong report policy violations from Validate.
var (
	ErrTooShort = fmt.Errorf("password: must be at least %d bytes", MinLength)
	ErrTooLong  = fmt.Errorf("password: must be at most %d bytes", MaxLength)
)

// Validate checks the password policy against the trimmed input and returns
// the trimmed password. Leading and trailing whitespace never counts toward
// the length, so an all-whitespace password is rejected as too short.
func Validate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < MinLength {
		return "", ErrTooShort
	}
	if len(trimmed) > MaxLength {
		return "", ErrTooLong
	}
	return trimmed, nil
}

// Hash derives an argon2id hash of the trimmed password and returns it in
// PHC string format.
func Hash(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(trimmed), salt, iterations, memory, parallelism, keyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether the trimmed password matches the encoded hash.
// A wrong password yields (false, nil); a hash that cannot be parsed yields
// ErrHashFormat.
func Verify(raw, encoded string) (bool, error) {
	trimmed := strings.TrimSpace(raw)

	salt, key, m, t, p, err := decode(encoded)
	if err != nil {
		return false, err
	}

	derived := argon2.IDKey([]byte(trimmed), salt, t, m, p, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1, nil
}

func decode(encoded string) (salt, key []byte, m, t uint32, p uint8, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, ErrHashFormat
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, ErrHashFormat
	}
	if version != argon2.Version {
		return nil, nil, 0, 0, 0, ErrHashFormat
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return nil, nil, 0, 0, 0, ErrHashFormat
	}
	// argon2.IDKey panics on zero iterations or parallelism.
	if m < 1 || t < 1 || p < 1 {
		return nil, nil, 0, 0, 0, ErrHashFormat
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, ErrHashFormat
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, nil, 0, 0, 0, ErrHashFormat
	}
	return salt, key, m, t, p, nil
}
