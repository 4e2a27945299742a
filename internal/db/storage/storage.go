// Package storage declares the persistence contract shared by the PostgreSQL,
// JSON file and in-memory backends.
package storage

import (
	"context"

	"github.com/patric-chuzhbe/placeshare/internal/place"
	"github.com/patric-chuzhbe/placeshare/internal/user"
)

// Transaction is a transactional scope opened by BeginTransaction.
// *sql.Tx satisfies it.
type Transaction interface {
	Commit() error
	Rollback() error
}

type Transactioner interface {
	BeginTransaction(ctx context.Context) (Transaction, error)

	RollbackTransaction(transaction Transaction) error

	CommitTransaction(transaction Transaction) error
}

type UserKeeper interface {
	CreateUser(ctx context.Context, usr *user.User, transaction Transaction) (string, error)

	GetUserByID(ctx context.Context, userID string, transaction Transaction) (*user.User, error)

	GetUserByEmail(ctx context.Context, email string, transaction Transaction) (*user.User, error)

	GetUsers(ctx context.Context) ([]*user.User, error)

	LinkUserPlace(ctx context.Context, userID, placeID string, transaction Transaction) error

	UnlinkUserPlace(ctx context.Context, userID, placeID string, transaction Transaction) error

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type PlaceKeeper interface {
	InsertPlace(ctx context.Context, p *place.Place, transaction Transaction) error

	GetPlaceByID(ctx context.Context, placeID string, transaction Transaction) (*place.Place, error)

	GetPlacesByCreator(ctx context.Context, userID string) ([]*place.Place, error)

	UpdatePlace(ctx context.Context, p *place.Place, transaction Transaction) error

	DeletePlace(ctx context.Context, placeID string, transaction Transaction) error

	GetNumberOfPlaces(ctx context.Context) (int64, error)
}

type Storage interface {
	Transactioner
	UserKeeper
	PlaceKeeper

	Ping(ctx context.Context) error

	Close() error
}
