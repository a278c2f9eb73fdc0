package dbutil

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	require.Equal(t, "SELECT v FROM kv WHERE (k=$1) AND (mtime>$2)", Rebind("SELECT v FROM kv WHERE (k=?) AND (mtime>?)"))
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.True(t, IsConflict(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	require.False(t, IsConflict(&pq.Error{Code: "42P01"}))
	require.False(t, IsConflict(fmt.Errorf("other")))
}
