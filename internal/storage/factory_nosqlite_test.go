//go:build !sqlite

package storage

import (
	"errors"
	"testing"
)

func TestNewStoreSQLiteUnavailable(t *testing.T) {
	if _, err := NewStore(KindSQLite, "runs.db"); !errors.Is(err, errNoSQLite) {
		t.Fatalf("expected missing sqlite backend error, got %v", err)
	}
}
