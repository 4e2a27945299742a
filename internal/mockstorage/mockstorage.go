// Package mockstorage provides a testify-based mock implementation of
// storage.Storage. It lets tests inject failures at any step of a
// transactional write.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/placeshare/internal/db/storage"
	"github.com/patric-chuzhbe/placeshare/internal/place"
	"github.com/patric-chuzhbe/placeshare/internal/user"
)

// StorageMock is a testify mock implementing storage.Storage.
type StorageMock struct {
	mock.Mock

	// OnGetNumberOfUsers is an optional function field that can be assigned
	// to define custom mock behavior for GetNumberOfUsers in tests.
	//
	// If set, GetNumberOfUsers will delegate to this function instead of
	// using testify's generic mock handler.
	OnGetNumberOfUsers func(ctx context.Context) (int64, error)

	// OnGetNumberOfPlaces does the same for GetNumberOfPlaces.
	OnGetNumberOfPlaces func(ctx context.Context) (int64, error)
}

// TxMock is a transaction handed out by a StorageMock.
type TxMock struct {
	mock.Mock
}

func (t *TxMock) Commit() error {
	args := t.Called()
	return args.Error(0)
}

func (t *TxMock) Rollback() error {
	args := t.Called()
	return args.Error(0)
}

// Ping mocks the health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// BeginTransaction mocks the beginning of a transaction.
func (m *StorageMock) BeginTransaction(ctx context.Context) (storage.Transaction, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(storage.Transaction)
	return tx, args.Error(1)
}

// CommitTransaction mocks committing a transaction.
func (m *StorageMock) CommitTransaction(tx storage.Transaction) error {
	args := m.Called(tx)
	return args.Error(0)
}

// RollbackTransaction mocks rolling back a transaction.
func (m *StorageMock) RollbackTransaction(tx storage.Transaction) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User, tx storage.Transaction) (string, error) {
	args := m.Called(ctx, usr, tx)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) GetUserByID(ctx context.Context, userID string, tx storage.Transaction) (*user.User, error) {
	args := m.Called(ctx, userID, tx)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) GetUserByEmail(ctx context.Context, email string, tx storage.Transaction) (*user.User, error) {
	args := m.Called(ctx, email, tx)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) GetUsers(ctx context.Context) ([]*user.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*user.User)
	return users, args.Error(1)
}

func (m *StorageMock) LinkUserPlace(ctx context.Context, userID, placeID string, tx storage.Transaction) error {
	args := m.Called(ctx, userID, placeID, tx)
	return args.Error(0)
}

func (m *StorageMock) UnlinkUserPlace(ctx context.Context, userID, placeID string, tx storage.Transaction) error {
	args := m.Called(ctx, userID, placeID, tx)
	return args.Error(0)
}

// GetNumberOfUsers mocks user counting; OnGetNumberOfUsers takes precedence.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfUsers != nil {
		return m.OnGetNumberOfUsers(ctx)
	}
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StorageMock) InsertPlace(ctx context.Context, p *place.Place, tx storage.Transaction) error {
	args := m.Called(ctx, p, tx)
	return args.Error(0)
}

func (m *StorageMock) GetPlaceByID(ctx context.Context, placeID string, tx storage.Transaction) (*place.Place, error) {
	args := m.Called(ctx, placeID, tx)
	p, _ := args.Get(0).(*place.Place)
	return p, args.Error(1)
}

func (m *StorageMock) GetPlacesByCreator(ctx context.Context, userID string) ([]*place.Place, error) {
	args := m.Called(ctx, userID)
	places, _ := args.Get(0).([]*place.Place)
	return places, args.Error(1)
}

func (m *StorageMock) UpdatePlace(ctx context.Context, p *place.Place, tx storage.Transaction) error {
	args := m.Called(ctx, p, tx)
	return args.Error(0)
}

func (m *StorageMock) DeletePlace(ctx context.Context, placeID string, tx storage.Transaction) error {
	args := m.Called(ctx, placeID, tx)
	return args.Error(0)
}

// GetNumberOfPlaces mocks place counting; OnGetNumberOfPlaces takes precedence.
func (m *StorageMock) GetNumberOfPlaces(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfPlaces != nil {
		return m.OnGetNumberOfPlaces(ctx)
	}
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

var _ storage.Storage = (*StorageMock)(nil)
