package rand

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestID(t *testing.T) {
	id := ID(12)
	assert.Len(t, id, 12)
	for _, c := range id {
		assert.True(t, strings.ContainsRune(charset, c), "unexpected rune %q", c)
	}
	assert.Empty(t, ID(0))
	assert.Empty(t, ID(-1))
}

func TestIDConcurrentUnique(t *testing.T) {
	const n = 500
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- ID(16)
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func BenchmarkID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = ID(12)
	}
}
