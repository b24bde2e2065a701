package service

import (
	"crypto/rand"
	"fmt"
	"io"
)

// alphabet is the 62-character set short codes are drawn from
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ShortCodeGenerator draws random codes of a fixed length.
//
// Each character is one random byte reduced modulo 62. 256 is not a multiple
// of 62, so the first 8 characters are slightly more likely (5/256 vs 4/256);
// this bias is accepted.
type ShortCodeGenerator struct {
	length int
	rnd    io.Reader
}

// NewShortCodeGenerator validates length against [MinCodeLength, MaxCodeLength].
// A nil rnd uses crypto/rand.
func NewShortCodeGenerator(length int, rnd io.Reader) (*ShortCodeGenerator, error) {
	if length < MinCodeLength || length > MaxCodeLength {
		return nil, fmt.Errorf("short code length %d outside [%d,%d]", length, MinCodeLength, MaxCodeLength)
	}
	if rnd == nil {
		rnd = rand.Reader
	}
	return &ShortCodeGenerator{length: length, rnd: rnd}, nil
}

// Generate returns a fresh code.
func (g *ShortCodeGenerator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.rnd, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// Length is the size of generated codes.
func (g *ShortCodeGenerator) Length() int { return g.length }
