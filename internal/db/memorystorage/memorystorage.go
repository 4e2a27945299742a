// Package memorystorage provides the volatile storage used when neither a
// database DSN nor a storage file is configured.
package memorystorage

import (
	"github.com/patric-chuzhbe/placeshare/internal/db/jsondb"
)

// MemoryStorage is a JSONDB without a backing file, so Close persists
// nothing and Ping always succeeds.
type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: jsondb.NewInMemory(),
	}, nil
}
