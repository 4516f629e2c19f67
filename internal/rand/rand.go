// Package rand generates the short identifiers that tag Publisher
// instances in snapshots and log lines.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var defaultSource = newSource()

type source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource() *source {
	seed := make([]byte, 16)
	if _, err := cryptorand.Read(seed); err != nil {
		panic("unreachable")
	}
	return &source{
		//nolint:gosec // identifiers are not secrets
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

func (s *source) base62(length int) string {
	if length <= 0 {
		return ""
	}
	buf := make([]byte, length)

	s.mu.Lock()
	for i := range buf {
		buf[i] = charset[s.rng.IntN(len(charset))]
	}
	s.mu.Unlock()

	return string(buf)
}

// ID returns a random base62 string of the given length.
func ID(length int) string {
	return defaultSource.base62(length)
}
