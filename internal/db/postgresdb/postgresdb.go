// Package postgresdb provides a PostgreSQL-based implementation of the storage interface
// for persisting users, places and the association between them.
// It supports transactional operations so that a place and its creator's
// place set are written together.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/placeshare/internal/db/storage"
	"github.com/patric-chuzhbe/placeshare/internal/models"
	"github.com/patric-chuzhbe/placeshare/internal/place"
	"github.com/patric-chuzhbe/placeshare/internal/user"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresDB is a PostgreSQL-backed storage.
// It handles all persistence operations via a PostgreSQL database connection.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type initOptions struct {
	DBPreReset bool
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
// Optionally accepts initialization options, such as WithDBPreReset.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.UpContext(ctx, result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.Up()` calling: %w",
				err,
			)
	}

	return result, nil
}

func (db *PostgresDB) conn(transaction storage.Transaction) (queryer, error) {
	if transaction == nil {
		return db.database, nil
	}

	tx, ok := transaction.(*sql.Tx)
	if !ok {
		return nil, fmt.Errorf("unexpected transaction type %T", transaction)
	}

	return tx, nil
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// BeginTransaction starts a new SQL transaction and returns it.
// The caller is responsible for committing or rolling it back.
func (db *PostgresDB) BeginTransaction(ctx context.Context) (storage.Transaction, error) {
	tx, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return tx, nil
}

// CommitTransaction commits the given SQL transaction.
// Returns an error if the commit operation fails.
func (db *PostgresDB) CommitTransaction(transaction storage.Transaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred while committing transaction: %v", r)
		}
	}()

	return transaction.Commit()
}

// RollbackTransaction rolls back the given SQL transaction.
// If rollback fails, the returned error describes the issue.
func (db *PostgresDB) RollbackTransaction(transaction storage.Transaction) error {
	return transaction.Rollback()
}

// CreateUser inserts a new user record into the database.
// Returns the created user ID, or models.ErrConflict when the email is taken.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User, transaction storage.Transaction) (string, error) {
	database, err := db.conn(transaction)
	if err != nil {
		return "", err
	}

	row := database.QueryRowContext(
		ctx,
		`
			INSERT INTO users (name, email, password, image)
				VALUES ($1, $2, $3, $4)
				RETURNING id
		`,
		usr.Name,
		usr.Email,
		usr.Password,
		usr.Image,
	)
	var userIDFromDB string
	if err := row.Scan(&userIDFromDB); err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return "", models.ErrConflict
		}
		return "", err
	}

	return userIDFromDB, nil
}

const selectUserWithPlaces = `
	SELECT users.id, users.name, users.email, users.password, users.image,
		COALESCE(
			array_agg(users_places.place_id::text) FILTER (WHERE users_places.place_id IS NOT NULL),
			'{}'
		)
		FROM users
			LEFT JOIN users_places ON users_places.user_id = users.id
`

func scanUser(row interface{ Scan(dest ...any) error }) (*user.User, error) {
	var (
		usr    user.User
		places pq.StringArray
	)
	if err := row.Scan(&usr.ID, &usr.Name, &usr.Email, &usr.Password, &usr.Image, &places); err != nil {
		return nil, err
	}
	usr.Places = []string(places)
	if usr.Places == nil {
		usr.Places = []string{}
	}

	return &usr, nil
}

// GetUserByID fetches a user and their place set by UUID.
func (db *PostgresDB) GetUserByID(ctx context.Context, userID string, transaction storage.Transaction) (*user.User, error) {
	if !isUUID(userID) {
		return nil, models.ErrNotFound
	}

	database, err := db.conn(transaction)
	if err != nil {
		return nil, err
	}

	usr, err := scanUser(database.QueryRowContext(
		ctx,
		selectUserWithPlaces+` WHERE users.id = $1 GROUP BY users.id`,
		userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return usr, nil
}

// GetUserByEmail fetches a user and their place set by email.
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string, transaction storage.Transaction) (*user.User, error) {
	database, err := db.conn(transaction)
	if err != nil {
		return nil, err
	}

	usr, err := scanUser(database.QueryRowContext(
		ctx,
		selectUserWithPlaces+` WHERE users.email = $1 GROUP BY users.id`,
		email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return usr, nil
}

// GetUsers returns every user ordered by name.
func (db *PostgresDB) GetUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := db.database.QueryContext(
		ctx,
		selectUserWithPlaces+` GROUP BY users.id ORDER BY users.name, users.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*user.User{}
	for rows.Next() {
		usr, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, usr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// LinkUserPlace adds placeID to the user's place set.
// It uses an UPSERT strategy so repeated links are harmless.
func (db *PostgresDB) LinkUserPlace(ctx context.Context, userID, placeID string, transaction storage.Transaction) error {
	if !isUUID(userID) {
		return models.ErrNotFound
	}

	database, err := db.conn(transaction)
	if err != nil {
		return err
	}

	_, err = database.ExecContext(
		ctx,
		`
			INSERT INTO users_places (user_id, place_id)
				VALUES ($1, $2)
				ON CONFLICT (user_id, place_id) DO NOTHING
		`,
		userID,
		placeID,
	)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return models.ErrNotFound
		}
		return err
	}

	return nil
}

// UnlinkUserPlace removes placeID from the user's place set.
func (db *PostgresDB) UnlinkUserPlace(ctx context.Context, userID, placeID string, transaction storage.Transaction) error {
	if !isUUID(userID) || !isUUID(placeID) {
		return models.ErrNotFound
	}

	database, err := db.conn(transaction)
	if err != nil {
		return err
	}

	_, err = database.ExecContext(
		ctx,
		`DELETE FROM users_places WHERE user_id = $1 AND place_id = $2`,
		userID,
		placeID,
	)

	return err
}

func (db *PostgresDB) count(ctx context.Context, query string) (int64, error) {
	var result int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return 0, err
	}

	return result, nil
}

// GetNumberOfUsers returns the amount of registered users.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

// GetNumberOfPlaces returns the amount of stored places.
func (db *PostgresDB) GetNumberOfPlaces(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM places`)
}

// InsertPlace creates a new place row.
func (db *PostgresDB) InsertPlace(ctx context.Context, p *place.Place, transaction storage.Transaction) error {
	if !isUUID(p.Creator) {
		return models.ErrNotFound
	}

	database, err := db.conn(transaction)
	if err != nil {
		return err
	}

	_, err = database.ExecContext(
		ctx,
		`
			INSERT INTO places (id, title, description, image, address, lat, lng, creator_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
		p.ID,
		p.Title,
		p.Description,
		p.Image,
		p.Address,
		p.Location.Lat,
		p.Location.Lng,
		p.Creator,
	)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return models.ErrNotFound
		}
		return err
	}

	return nil
}

const selectPlace = `SELECT id, title, description, image, address, lat, lng, creator_id FROM places`

func scanPlace(row interface{ Scan(dest ...any) error }) (*place.Place, error) {
	var p place.Place
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Image,
		&p.Address,
		&p.Location.Lat,
		&p.Location.Lng,
		&p.Creator,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// GetPlaceByID fetches a place by UUID.
func (db *PostgresDB) GetPlaceByID(ctx context.Context, placeID string, transaction storage.Transaction) (*place.Place, error) {
	if !isUUID(placeID) {
		return nil, models.ErrNotFound
	}

	database, err := db.conn(transaction)
	if err != nil {
		return nil, err
	}

	p, err := scanPlace(database.QueryRowContext(ctx, selectPlace+` WHERE id = $1`, placeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return p, nil
}

// GetPlacesByCreator returns the places created by userID.
func (db *PostgresDB) GetPlacesByCreator(ctx context.Context, userID string) ([]*place.Place, error) {
	if !isUUID(userID) {
		return []*place.Place{}, nil
	}

	rows, err := db.database.QueryContext(ctx, selectPlace+` WHERE creator_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*place.Place{}
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// UpdatePlace overwrites the title and description of an existing place.
func (db *PostgresDB) UpdatePlace(ctx context.Context, p *place.Place, transaction storage.Transaction) error {
	if !isUUID(p.ID) {
		return models.ErrNotFound
	}

	database, err := db.conn(transaction)
	if err != nil {
		return err
	}

	result, err := database.ExecContext(
		ctx,
		`UPDATE places SET title = $2, description = $3 WHERE id = $1`,
		p.ID,
		p.Title,
		p.Description,
	)
	if err != nil {
		return err
	}

	return requireAffectedRows(result)
}

// DeletePlace removes a place row.
func (db *PostgresDB) DeletePlace(ctx context.Context, placeID string, transaction storage.Transaction) error {
	if !isUUID(placeID) {
		return models.ErrNotFound
	}

	database, err := db.conn(transaction)
	if err != nil {
		return err
	}

	result, err := database.ExecContext(ctx, `DELETE FROM places WHERE id = $1`, placeID)
	if err != nil {
		return err
	}

	return requireAffectedRows(result)
}

func requireAffectedRows(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}

	return nil
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables resetting the database schema before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
