package jsondb

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/placeshare/internal/models"
	"github.com/patric-chuzhbe/placeshare/internal/place"
	"github.com/patric-chuzhbe/placeshare/internal/user"
)

func newTestPlace(creator string) *place.Place {
	return &place.Place{
		ID:          models.NewID(),
		Title:       "Eiffel",
		Description: "Iconic tower",
		Image:       "uploads/images/eiffel.png",
		Address:     "Paris",
		Location:    models.Location{Lat: 48.8584, Lng: 2.2945},
		Creator:     creator,
	}
}

func Test(t *testing.T) {
	t.Run("The base jsondb package test", func(t *testing.T) {
		ctx := context.Background()
		fileName := filepath.Join(t.TempDir(), "db_test.json")

		theStorage, err := New(fileName)
		require.NoError(t, err)
		require.NotNil(t, theStorage)

		userID, err := theStorage.CreateUser(ctx, &user.User{Name: "A", Email: "a@x.com", Password: "hash"}, nil)
		require.NoError(t, err)
		require.NotEmpty(t, userID)

		_, err = theStorage.CreateUser(ctx, &user.User{Name: "B", Email: "a@x.com", Password: "hash"}, nil)
		assert.ErrorIs(t, err, models.ErrConflict, "The duplicated email should be rejected")

		p := newTestPlace(userID)
		require.NoError(t, theStorage.InsertPlace(ctx, p, nil))
		require.NoError(t, theStorage.LinkUserPlace(ctx, userID, p.ID, nil))

		require.NoError(t, theStorage.Close())

		reopened, err := New(fileName)
		require.NoError(t, err)

		usr, err := reopened.GetUserByEmail(ctx, "a@x.com", nil)
		require.NoError(t, err)
		assert.Equal(t, userID, usr.ID)
		assert.Equal(t, "hash", usr.Password, "The password hash should survive the file round trip")
		assert.Equal(t, []string{p.ID}, usr.Places)

		stored, err := reopened.GetPlaceByID(ctx, p.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, p, stored)
	})
}

func TestNewCreatesMissingFile(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "fresh.json")

	theStorage, err := New(fileName)
	require.NoError(t, err)

	_, err = os.Stat(fileName)
	assert.NoError(t, err)

	count, err := theStorage.GetNumberOfUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRollbackRestoresEveryStep(t *testing.T) {
	ctx := context.Background()
	theStorage := NewInMemory()

	userID, err := theStorage.CreateUser(ctx, &user.User{Name: "A", Email: "a@x.com"}, nil)
	require.NoError(t, err)

	tx, err := theStorage.BeginTransaction(ctx)
	require.NoError(t, err)

	p := newTestPlace(userID)
	require.NoError(t, theStorage.InsertPlace(ctx, p, tx))
	require.NoError(t, theStorage.LinkUserPlace(ctx, userID, p.ID, tx))

	inside, err := theStorage.GetUserByID(ctx, userID, tx)
	require.NoError(t, err)
	assert.True(t, inside.HasPlace(p.ID), "The transaction should read its own writes")

	require.NoError(t, theStorage.RollbackTransaction(tx))

	_, err = theStorage.GetPlaceByID(ctx, p.ID, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)

	usr, err := theStorage.GetUserByID(ctx, userID, nil)
	require.NoError(t, err)
	assert.Empty(t, usr.Places)

	assert.Error(t, theStorage.CommitTransaction(tx), "A finished transaction cannot be committed")
}

func TestReadersWaitForTransaction(t *testing.T) {
	ctx := context.Background()
	theStorage := NewInMemory()

	userID, err := theStorage.CreateUser(ctx, &user.User{Name: "A", Email: "a@x.com"}, nil)
	require.NoError(t, err)

	tx, err := theStorage.BeginTransaction(ctx)
	require.NoError(t, err)

	p := newTestPlace(userID)
	require.NoError(t, theStorage.InsertPlace(ctx, p, tx))

	var (
		wg       sync.WaitGroup
		observed *user.User
		placeErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, placeErr = theStorage.GetPlaceByID(ctx, p.ID, nil)
		observed, _ = theStorage.GetUserByID(ctx, userID, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, theStorage.LinkUserPlace(ctx, userID, p.ID, tx))
	require.NoError(t, theStorage.CommitTransaction(tx))
	wg.Wait()

	require.NoError(t, placeErr)
	require.NotNil(t, observed)
	assert.True(t, observed.HasPlace(p.ID), "The reader should only see the committed pair")
}

func TestForeignTransactionIsRejected(t *testing.T) {
	ctx := context.Background()
	first := NewInMemory()
	second := NewInMemory()

	tx, err := first.BeginTransaction(ctx)
	require.NoError(t, err)
	defer func() {
		_ = first.RollbackTransaction(tx)
	}()

	err = second.InsertPlace(ctx, newTestPlace(models.NewID()), tx)
	assert.ErrorIs(t, err, ErrForeignTransaction)
}

func TestUnlinkAndDelete(t *testing.T) {
	ctx := context.Background()
	theStorage := NewInMemory()

	userID, err := theStorage.CreateUser(ctx, &user.User{Name: "A", Email: "a@x.com"}, nil)
	require.NoError(t, err)

	first := newTestPlace(userID)
	second := newTestPlace(userID)
	for _, p := range []*place.Place{first, second} {
		require.NoError(t, theStorage.InsertPlace(ctx, p, nil))
		require.NoError(t, theStorage.LinkUserPlace(ctx, userID, p.ID, nil))
	}

	places, err := theStorage.GetPlacesByCreator(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, places, 2)

	require.NoError(t, theStorage.DeletePlace(ctx, first.ID, nil))
	require.NoError(t, theStorage.UnlinkUserPlace(ctx, userID, first.ID, nil))

	usr, err := theStorage.GetUserByID(ctx, userID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, usr.Places)

	assert.ErrorIs(t, theStorage.DeletePlace(ctx, first.ID, nil), models.ErrNotFound)
	assert.ErrorIs(t, theStorage.UpdatePlace(ctx, first, nil), models.ErrNotFound)

	count, err := theStorage.GetNumberOfPlaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	theStorage := NewInMemory()

	userID, err := theStorage.CreateUser(ctx, &user.User{Name: "A", Email: "a@x.com"}, nil)
	require.NoError(t, err)

	usr, err := theStorage.GetUserByID(ctx, userID, nil)
	require.NoError(t, err)
	usr.Places = append(usr.Places, "tampered")

	again, err := theStorage.GetUserByID(ctx, userID, nil)
	require.NoError(t, err)
	assert.Empty(t, again.Places)
}
