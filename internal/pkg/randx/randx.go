/*
Package randx provides functions for generating random identifiers.

It is used to generate fixed-length alphanumeric session tokens and the hex
salt material stored alongside password hashes.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// TokenChars defines the character set used for session tokens (a-z, A-Z, 0-9).
	TokenChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// TokenCharsLen is the total number of characters in the token character set.
	TokenCharsLen = int64(len(TokenChars))

	// TokenLength is the fixed length of a session token.
	TokenLength = 32
)

// SessionToken generates an alphanumeric session token using a
// cryptographically secure random number generator (crypto/rand).
// It returns a string of length TokenLength and any error encountered.
func SessionToken() (string, error) {
	result := make([]byte, TokenLength)

	for i := 0; i < TokenLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(TokenCharsLen))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for session token: %v", err)
		}

		result[i] = TokenChars[num.Int64()]
	}

	return string(result), nil
}

// SaltHex generates a 32-character hex salt string for password hashing.
func SaltHex() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsValidToken checks if the given string is shaped like a session token.
// Validity criteria include: length equals TokenLength and all characters
// belong to the TokenChars set.
func IsValidToken(token string) bool {
	if len(token) != TokenLength {
		return false
	}

	for _, char := range token {
		if !strings.ContainsRune(TokenChars, char) {
			return false
		}
	}

	return true
}
