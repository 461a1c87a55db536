package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	prev := NewAt(at)
	for i := 0; i < 100; i++ {
		next := NewAt(at)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestNewAtEncodesTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 30, 15, int(250*time.Millisecond), time.UTC)
	u, err := ulid.ParseStrict(NewAt(at))
	require.NoError(t, err)
	assert.True(t, ulid.Time(u.Time()).Equal(at))
}
