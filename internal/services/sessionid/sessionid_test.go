package sessionid

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIDFormat(t *testing.T) {
	tests := []struct {
		name     string
		generate func() string
	}{
		{"package function", New},
		{"generator instance", func() string { return NewGenerator().Generate() }},
	}

	idRegex := regexp.MustCompile(`^[0-9a-hjkmnp-tv-z]{26}$`)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.generate()

			assert.Len(t, id, 26, "session id should be exactly 26 characters")
			assert.True(t, idRegex.MatchString(id), "session id should be lowercase base32")
		})
	}
}

func TestUniqueness(t *testing.T) {
	const iterations = 1000
	ids := make(map[string]bool, iterations)

	gen := NewGenerator()

	for i := 0; i < iterations; i++ {
		id := gen.Generate()
		assert.False(t, ids[id], "generated session id should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, iterations)
}

func TestMonotonicOrdering(t *testing.T) {
	gen := NewGenerator()

	var ids []string
	for i := 0; i < 100; i++ {
		ids = append(ids, gen.Generate())
	}

	for i := 1; i < len(ids); i++ {
		assert.True(t, ids[i-1] <= ids[i],
			"session ids should be lexicographically ordered: %s should be <= %s",
			ids[i-1], ids[i])
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const numGoroutines = 50
	const idsPerGoroutine = 20

	gen := NewGenerator()
	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := make(map[string]bool, numGoroutines*idsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < idsPerGoroutine; j++ {
				id := gen.Generate()
				require.Len(t, id, 26)

				mu.Lock()
				require.False(t, ids[id], "concurrent session id should be unique: %s", id)
				ids[id] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Len(t, ids, numGoroutines*idsPerGoroutine)
}

func TestTimeRecovery(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	id := New()
	after := time.Now()

	ts, err := Time(id)
	require.NoError(t, err)

	assert.False(t, ts.Before(before), "embedded time %v should not precede %v", ts, before)
	assert.False(t, ts.After(after), "embedded time %v should not follow %v", ts, after)

	_, err = Time("not-a-session-id")
	assert.Error(t, err)
}

func BenchmarkGenerate(b *testing.B) {
	gen := NewGenerator()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = gen.Generate()
	}
}
