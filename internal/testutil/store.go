package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tokenledger/internal/store"
)

// OpenStore opens a private in-memory store closed at test cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
