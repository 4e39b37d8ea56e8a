package usecase

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	jobEntropyMu sync.Mutex
	jobEntropy   = ulid.Monotonic(rand.Reader, 0)
)

// newJobID returns a lexicographically sortable id so job listings come
// out in submission order.
func newJobID(t time.Time) string {
	jobEntropyMu.Lock()
	defer jobEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), jobEntropy).String()
}
