package domain

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password algorithm identifiers as stored and transmitted.
const (
	// AlgorithmBcrypt is the default hashing algorithm. The salt is embedded
	// in the hash, so the Salt field stays empty.
	AlgorithmBcrypt = "BCRYPT"
	// AlgorithmPlain stores the plaintext directly. Test use only.
	AlgorithmPlain = "PLAIN"
)

// Password is a stored credential. The hash and salt are opaque to everything
// except Check; they must never be logged or transmitted unredacted.
type Password struct {
	Algorithm string
	Hash      string
	Salt      string
}

// NewPassword hashes a plaintext password with the default algorithm.
func NewPassword(plaintext string) (Password, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return Password{}, fmt.Errorf("hash password: %w", err)
	}
	return Password{Algorithm: AlgorithmBcrypt, Hash: string(hash)}, nil
}

// Check reports whether the plaintext matches the stored credential.
func (p Password) Check(plaintext string) (bool, error) {
	switch p.Algorithm {
	case AlgorithmBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(p.Hash), []byte(plaintext))
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("compare password: %w", err)
		}
		return true, nil
	case AlgorithmPlain:
		return subtle.ConstantTimeCompare([]byte(p.Hash), []byte(plaintext)) == 1, nil
	default:
		return false, fmt.Errorf("unrecognized password algorithm %q", p.Algorithm)
	}
}

// Redact returns a copy safe for transmission, with hash and salt blanked.
func (p Password) Redact() Password {
	return Password{Algorithm: p.Algorithm}
}
