package interview

import (
	"crypto/rand"
	"fmt"
)

// joinAlphabet omits characters that are easy to misread aloud (0/O, 1/I/L).
const joinAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// JoinCodeLength is the length of generated join codes.
const JoinCodeLength = 8

// GenerateJoinCode returns a random, human-shareable join code.
func GenerateJoinCode() (string, error) {
	b := make([]byte, JoinCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("interview: generate join code: %w", err)
	}
	for i := range b {
		b[i] = joinAlphabet[int(b[i])%len(joinAlphabet)]
	}
	return string(b), nil
}
