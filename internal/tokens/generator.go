// Package tokens generates bearer tokens and issues them to accounts.
package tokens

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// DefaultAlphabet is the ASCII alphanumeric set
	DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// DefaultLength gives about 190 bits of entropy over DefaultAlphabet
	DefaultLength = 32
	// MinEntropyBits is the weakest configuration accepted
	MinEntropyBits = 128
	// MaxLength keeps tokens reasonable in an Authorization header
	MaxLength = 100
)

var (
	ErrWeakConfig    = errors.New("token configuration below minimum entropy")
	ErrInvalidConfig = errors.New("invalid token configuration")
)

// Generator produces uniformly random tokens over a fixed alphabet
type Generator struct {
	alphabet []byte
	length   int
	// bytes at or above limit are discarded so that every symbol is equally likely
	limit int
	rand  io.Reader
}

// NewGenerator validates the configuration and returns a generator backed by crypto/rand.
// The alphabet must be printable ASCII without spaces and without repeated characters.
func NewGenerator(length int, alphabet string) (*Generator, error) {
	if length <= 0 || length > MaxLength {
		return nil, fmt.Errorf("%w: length must be between 1 and %d, got %d", ErrInvalidConfig, MaxLength, length)
	}
	if len(alphabet) < 2 {
		return nil, fmt.Errorf("%w: alphabet needs at least 2 characters", ErrInvalidConfig)
	}
	seen := make(map[byte]bool, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		if c <= ' ' || c > '~' {
			return nil, fmt.Errorf("%w: alphabet character %q is not printable ASCII", ErrInvalidConfig, c)
		}
		if seen[c] {
			return nil, fmt.Errorf("%w: alphabet character %q is repeated", ErrInvalidConfig, c)
		}
		seen[c] = true
	}

	g := &Generator{
		alphabet: []byte(alphabet),
		length:   length,
		limit:    256 - 256%len(alphabet),
		rand:     rand.Reader,
	}
	if bits := g.EntropyBits(); bits < MinEntropyBits {
		return nil, fmt.Errorf("%w: %d characters over %d symbols give %.1f bits, need %d",
			ErrWeakConfig, length, len(alphabet), bits, MinEntropyBits)
	}
	return g, nil
}

// EntropyBits returns length * log2(|alphabet|)
func (g *Generator) EntropyBits() float64 {
	return float64(g.length) * math.Log2(float64(len(g.alphabet)))
}

// Length returns the number of characters of every generated token
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a new token
func (g *Generator) Generate() (string, error) {
	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length+g.length/2)
	for len(out) < g.length {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= g.limit {
				continue
			}
			out = append(out, g.alphabet[int(b)%len(g.alphabet)])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out), nil
}
