package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/busfare/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := idx.Parse("")
	require.ErrorIs(t, err, idx.ErrInvalid)

	_, err = idx.Parse("not-a-ulid")
	require.ErrorIs(t, err, idx.ErrInvalid)
}

func TestMonotonic(t *testing.T) {
	tm := time.Unix(1700000000, 0).UTC()
	a := idx.NewAt(tm)
	b := idx.NewAt(tm)

	// Same millisecond, the monotonic source still has to order them.
	require.Less(t, a.String(), b.String())
	require.WithinDuration(t, tm, a.Time(), time.Millisecond)
}

func TestShort(t *testing.T) {
	id := idx.New()
	require.Len(t, id.Short(), 8)
	require.Equal(t, "abc", idx.ID("abc").Short())
}
