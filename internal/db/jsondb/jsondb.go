// Package jsondb provides an in-process storage backend that keeps users and
// places in memory and optionally persists them to a JSON file on Close.
//
// Transactions hold the write lock from BeginTransaction until Commit or
// Rollback and journal undo steps, so readers never observe a partially
// applied transaction. A goroutine owning a transaction must pass it to every
// storage call it makes until the transaction is finished.
package jsondb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/placeshare/internal/db/storage"
	"github.com/patric-chuzhbe/placeshare/internal/models"
	"github.com/patric-chuzhbe/placeshare/internal/place"
	"github.com/patric-chuzhbe/placeshare/internal/user"
)

// ErrForeignTransaction is returned when a transaction opened by another
// storage is passed in.
var ErrForeignTransaction = errors.New("transaction does not belong to this storage")

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	cache    cacheStruct
}

type cacheStruct struct {
	users            map[string]*user.User
	places           map[string]*place.Place
	emailsToUsersIDs map[string]string
}

type userDocument struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Image    string   `json:"image"`
	Places   []string `json:"places"`
}

type document struct {
	Users  []userDocument `json:"users"`
	Places []*place.Place `json:"places"`
}

type transaction struct {
	db   *JSONDB
	undo []func()
	done bool
}

func (t *transaction) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.undo = nil
	t.db.mu.Unlock()

	return nil
}

func (t *transaction) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.db.mu.Unlock()

	return nil
}

func (t *transaction) onRollback(step func()) {
	if t == nil {
		return
	}
	t.undo = append(t.undo, step)
}

func newCache() cacheStruct {
	return cacheStruct{
		users:            map[string]*user.User{},
		places:           map[string]*place.Place{},
		emailsToUsersIDs: map[string]string{},
	}
}

// NewInMemory returns a storage that is never written to disk.
func NewInMemory() *JSONDB {
	return &JSONDB{cache: newCache()}
}

// New loads the storage from fileName, creating an empty file when it does
// not exist yet.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		cache:    newCache(),
	}

	err := db.parseJSONFile()
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := writeToJSONFile(fileName, document{Users: []userDocument{}, Places: []*place.Place{}}); err != nil {
			return nil, err
		}
	}

	return db, nil
}

func (db *JSONDB) parseJSONFile() error {
	file, err := os.Open(db.fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	var doc document
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		return fmt.Errorf("error decoding %s: %w", db.fileName, err)
	}

	for _, u := range doc.Users {
		places := u.Places
		if places == nil {
			places = []string{}
		}
		db.cache.users[u.ID] = &user.User{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Password: u.Password,
			Image:    u.Image,
			Places:   places,
		}
		db.cache.emailsToUsersIDs[u.Email] = u.ID
	}
	for _, p := range doc.Places {
		db.cache.places[p.ID] = p
	}

	return nil
}

func writeToJSONFile(fileName string, doc document) error {
	jsonData, err := json.MarshalIndent(doc, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	if err := os.WriteFile(fileName, jsonData, 0644); err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}

	return nil
}

func (db *JSONDB) snapshot() document {
	doc := document{
		Users:  make([]userDocument, 0, len(db.cache.users)),
		Places: make([]*place.Place, 0, len(db.cache.places)),
	}
	for _, u := range db.cache.users {
		doc.Users = append(doc.Users, userDocument{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Password: u.Password,
			Image:    u.Image,
			Places:   u.Places,
		})
	}
	for _, p := range db.cache.places {
		doc.Places = append(doc.Places, p)
	}
	sort.Slice(doc.Users, func(i, j int) bool { return doc.Users[i].ID < doc.Users[j].ID })
	sort.Slice(doc.Places, func(i, j int) bool { return doc.Places[i].ID < doc.Places[j].ID })

	return doc
}

// acquire takes the lock needed by a single call. Calls made inside a
// transaction already own the write lock.
func (db *JSONDB) acquire(tx storage.Transaction, exclusive bool) (*transaction, func(), error) {
	if tx == nil {
		if exclusive {
			db.mu.Lock()
			return nil, db.mu.Unlock, nil
		}
		db.mu.RLock()
		return nil, db.mu.RUnlock, nil
	}

	owned, ok := tx.(*transaction)
	if !ok || owned.db != db {
		return nil, nil, ErrForeignTransaction
	}
	if owned.done {
		return nil, nil, sql.ErrTxDone
	}

	return owned, func() {}, nil
}

func (db *JSONDB) BeginTransaction(ctx context.Context) (storage.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.Lock()

	return &transaction{db: db}, nil
}

func (db *JSONDB) CommitTransaction(tx storage.Transaction) error {
	if tx == nil {
		return nil
	}
	return tx.Commit()
}

func (db *JSONDB) RollbackTransaction(tx storage.Transaction) error {
	if tx == nil {
		return nil
	}
	return tx.Rollback()
}

func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User, tx storage.Transaction) (string, error) {
	owned, release, err := db.acquire(tx, true)
	if err != nil {
		return "", err
	}
	defer release()

	if _, exists := db.cache.emailsToUsersIDs[usr.Email]; exists {
		return "", models.ErrConflict
	}

	stored := usr.Clone()
	if stored.ID == "" {
		stored.ID = models.NewID()
	}
	if _, exists := db.cache.users[stored.ID]; exists {
		return "", fmt.Errorf("user %s already exists", stored.ID)
	}
	if stored.Places == nil {
		stored.Places = []string{}
	}

	db.cache.users[stored.ID] = stored
	db.cache.emailsToUsersIDs[stored.Email] = stored.ID
	owned.onRollback(func() {
		delete(db.cache.users, stored.ID)
		delete(db.cache.emailsToUsersIDs, stored.Email)
	})

	return stored.ID, nil
}

func (db *JSONDB) GetUserByID(ctx context.Context, userID string, tx storage.Transaction) (*user.User, error) {
	_, release, err := db.acquire(tx, false)
	if err != nil {
		return nil, err
	}
	defer release()

	usr, found := db.cache.users[userID]
	if !found {
		return nil, models.ErrNotFound
	}

	return usr.Clone(), nil
}

func (db *JSONDB) GetUserByEmail(ctx context.Context, email string, tx storage.Transaction) (*user.User, error) {
	_, release, err := db.acquire(tx, false)
	if err != nil {
		return nil, err
	}
	defer release()

	userID, found := db.cache.emailsToUsersIDs[email]
	if !found {
		return nil, models.ErrNotFound
	}

	return db.cache.users[userID].Clone(), nil
}

func (db *JSONDB) GetUsers(ctx context.Context) ([]*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make([]*user.User, 0, len(db.cache.users))
	for _, usr := range db.cache.users {
		result = append(result, usr.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})

	return result, nil
}

func (db *JSONDB) LinkUserPlace(ctx context.Context, userID, placeID string, tx storage.Transaction) error {
	owned, release, err := db.acquire(tx, true)
	if err != nil {
		return err
	}
	defer release()

	usr, found := db.cache.users[userID]
	if !found {
		return models.ErrNotFound
	}
	if usr.HasPlace(placeID) {
		return nil
	}

	previous := usr.Places
	usr.Places = append(append([]string{}, previous...), placeID)
	owned.onRollback(func() {
		usr.Places = previous
	})

	return nil
}

func (db *JSONDB) UnlinkUserPlace(ctx context.Context, userID, placeID string, tx storage.Transaction) error {
	owned, release, err := db.acquire(tx, true)
	if err != nil {
		return err
	}
	defer release()

	usr, found := db.cache.users[userID]
	if !found {
		return models.ErrNotFound
	}

	previous := usr.Places
	usr.Places = funk.FilterString(previous, func(id string) bool {
		return id != placeID
	})
	if usr.Places == nil {
		usr.Places = []string{}
	}
	owned.onRollback(func() {
		usr.Places = previous
	})

	return nil
}

func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.cache.users)), nil
}

func (db *JSONDB) InsertPlace(ctx context.Context, p *place.Place, tx storage.Transaction) error {
	owned, release, err := db.acquire(tx, true)
	if err != nil {
		return err
	}
	defer release()

	if _, exists := db.cache.places[p.ID]; exists {
		return fmt.Errorf("place %s already exists", p.ID)
	}

	db.cache.places[p.ID] = p.Clone()
	owned.onRollback(func() {
		delete(db.cache.places, p.ID)
	})

	return nil
}

func (db *JSONDB) GetPlaceByID(ctx context.Context, placeID string, tx storage.Transaction) (*place.Place, error) {
	_, release, err := db.acquire(tx, false)
	if err != nil {
		return nil, err
	}
	defer release()

	p, found := db.cache.places[placeID]
	if !found {
		return nil, models.ErrNotFound
	}

	return p.Clone(), nil
}

func (db *JSONDB) GetPlacesByCreator(ctx context.Context, userID string) ([]*place.Place, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := []*place.Place{}
	for _, p := range db.cache.places {
		if p.IsCreatedBy(userID) {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// UpdatePlace overwrites the title and description of an existing place.
func (db *JSONDB) UpdatePlace(ctx context.Context, p *place.Place, tx storage.Transaction) error {
	owned, release, err := db.acquire(tx, true)
	if err != nil {
		return err
	}
	defer release()

	previous, found := db.cache.places[p.ID]
	if !found {
		return models.ErrNotFound
	}

	updated := previous.Clone()
	updated.Title = p.Title
	updated.Description = p.Description
	db.cache.places[p.ID] = updated
	owned.onRollback(func() {
		db.cache.places[p.ID] = previous
	})

	return nil
}

func (db *JSONDB) DeletePlace(ctx context.Context, placeID string, tx storage.Transaction) error {
	owned, release, err := db.acquire(tx, true)
	if err != nil {
		return err
	}
	defer release()

	previous, found := db.cache.places[placeID]
	if !found {
		return models.ErrNotFound
	}

	delete(db.cache.places, placeID)
	owned.onRollback(func() {
		db.cache.places[placeID] = previous
	})

	return nil
}

func (db *JSONDB) GetNumberOfPlaces(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.cache.places)), nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close flushes the storage to its file, if it has one.
func (db *JSONDB) Close() error {
	if db.fileName == "" {
		return nil
	}

	db.mu.RLock()
	doc := db.snapshot()
	db.mu.RUnlock()

	return writeToJSONFile(db.fileName, doc)
}
