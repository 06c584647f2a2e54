package invite

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet is 32 symbols: digits and uppercase letters minus 0/O/1/I,
// which read ambiguously on a kitchen tablet. Six symbols give ~30 bits of
// entropy — enough to deter guessing, not a cryptographic identifier.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeLength is the fixed length of join codes.
const CodeLength = 6

// GenerateCode returns a new random join code.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
