//go:build !sqlite

package storage

import "errors"

var errNoSQLite = errors.New("sqlite store not compiled in; build with -tags sqlite")

func newSQLiteStore(_ string) (Store, error) {
	return nil, errNoSQLite
}
