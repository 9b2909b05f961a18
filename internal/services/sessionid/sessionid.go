// Package sessionid generates telemetry session identifiers.
//
// A session id is a lowercase ULID: a millisecond time component followed by
// a random suffix. The time component makes ids sortable by session start and
// recoverable via Time, the random suffix makes collisions between clients
// vanishingly unlikely.
package sessionid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces session ids. Generation is thread-safe and monotonic:
// ids created within the same millisecond still sort in creation order.
type Generator struct {
	entropy *ulid.MonotonicEntropy
	mu      sync.Mutex
}

// NewGenerator creates a Generator with its own monotonic entropy source.
func NewGenerator() *Generator {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return &Generator{
		entropy: entropy,
	}
}

// Generate returns a new 26-character lowercase session id.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return strings.ToLower(id.String())
}

// Time recovers the creation time embedded in a session id.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(strings.ToUpper(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

var defaultGenerator = NewGenerator()

// New returns a session id from the package-level generator.
func New() string {
	return defaultGenerator.Generate()
}
