// Package password hashes and verifies admin passwords with
// PBKDF2-SHA256. Encoded hashes carry their parameters, so iteration
// counts can be raised without invalidating stored credentials.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	dErrors "dataregistry/pkg/domain-errors"
)

const (
	algorithm  = "pbkdf2_sha256"
	iterations = 100000
	saltBytes  = 16
	keyBytes   = 32
)

// Hash derives an encoded hash in the form
// pbkdf2_sha256$<iterations>$<salt-hex>$<key-hex>.
func Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
	}
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("could not generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(plaintext), salt, iterations, keyBytes, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		algorithm, iterations, hex.EncodeToString(salt), hex.EncodeToString(key)), nil
}

// Verify checks a plaintext password against an encoded hash. It
// returns a domain error on mismatch or a malformed hash.
func Verify(plaintext, encoded string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != algorithm {
		return dErrors.New(dErrors.CodeInvalidInput, "malformed password hash")
	}
	iters, err := strconv.Atoi(parts[1])
	if err != nil || iters <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "malformed password hash")
	}
	salt, err := hex.DecodeString(parts[2])
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "malformed password hash")
	}
	expected, err := hex.DecodeString(parts[3])
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "malformed password hash")
	}

	key := pbkdf2.Key([]byte(plaintext), salt, iters, len(expected), sha256.New)
	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	return nil
}
