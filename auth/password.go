// Package auth implements the registry's authentication layer: argon2id
// password hashing, signed bearer tokens, and delegated identity through
// OIDC and OAuth providers.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters. The encoded hash is self-describing, so these can be
// raised without invalidating existing hashes.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// ErrHashMalformed is returned when a stored password hash cannot be
// parsed.
var ErrHashMalformed = errors.New("auth: malformed password hash")

// dummyHash encodes a random password drawn once at startup. Login
// verifies against it when the account lookup fails, so the response
// costs the same key derivation whether or not the username exists.
var dummyHash = func() string {
	nonce := make([]byte, argonSaltLen)
	if _, err := rand.Read(nonce); err != nil {
		panic(err)
	}
	encoded, err := HashPassword(base64.RawStdEncoding.EncodeToString(nonce))
	if err != nil {
		panic(err)
	}
	return encoded
}()

// DummyHash returns a well-formed hash that matches no obtainable
// password, for burning verification work on failed account lookups.
func DummyHash() string {
	return dummyHash
}

// HashPassword derives an argon2id hash of password in the standard
// self-describing format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword reports whether password matches the encoded argon2id
// hash. The comparison is constant-time in the derived key.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrHashMalformed
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrHashMalformed
	}
	if version != argon2.Version {
		return false, fmt.Errorf("auth: unsupported argon2 version %d", version)
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, ErrHashMalformed
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrHashMalformed
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrHashMalformed
	}

	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
