package queue

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// TokenGenerator produces opaque admission tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

// Base62TokenGenerator generates random base62 strings of a fixed length.
type Base62TokenGenerator struct {
	length int
}

func NewBase62TokenGenerator(length int) (*Base62TokenGenerator, error) {
	if length < 8 {
		return nil, fmt.Errorf("token length %d too short, minimum is 8", length)
	}
	return &Base62TokenGenerator{length: length}, nil
}

func (g *Base62TokenGenerator) NewToken() (string, error) {
	buf := make([]byte, g.length)
	max := big.NewInt(int64(len(base62Alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		buf[i] = base62Alphabet[n.Int64()]
	}
	return string(buf), nil
}
