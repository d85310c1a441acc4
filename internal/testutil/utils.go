package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-convo/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).
		With().
		Timestamp().
		Str("service", "test").
		Logger()
}

// NewTestStore returns a migrated in-memory sqlite store that is closed when
// the test finishes.
func NewTestStore(t *testing.T) *database.SQLStore {
	t.Helper()

	store, err := database.NewSQLStore(database.DriverSqlite, ":memory:")
	require.NoError(t, err, "failed to open test database")
	require.NoError(t, store.Migrate(), "failed to migrate test database")
	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
