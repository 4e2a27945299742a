// Package association writes a place together with its creator's place set.
// Both records change inside one transaction, so readers never observe a
// place without its back-reference or the other way round.
package association

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/placeshare/internal/db/storage"
	"github.com/patric-chuzhbe/placeshare/internal/logger"
	"github.com/patric-chuzhbe/placeshare/internal/models"
	"github.com/patric-chuzhbe/placeshare/internal/place"
	"github.com/patric-chuzhbe/placeshare/internal/user"
)

// State names a step of an association write.
type State string

const (
	StateBegun         State = "Begun"
	StateWritingPlace  State = "WritingPlace"
	StateLinkingUser   State = "LinkingUser"
	StateRemovingPlace State = "RemovingPlace"
	StateUnlinkingUser State = "UnlinkingUser"
	StateCommitted     State = "Committed"
	StateFailed        State = "Failed"
)

type keeper interface {
	storage.Transactioner

	GetUserByID(ctx context.Context, userID string, transaction storage.Transaction) (*user.User, error)

	InsertPlace(ctx context.Context, p *place.Place, transaction storage.Transaction) error

	DeletePlace(ctx context.Context, placeID string, transaction storage.Transaction) error

	LinkUserPlace(ctx context.Context, userID, placeID string, transaction storage.Transaction) error

	UnlinkUserPlace(ctx context.Context, userID, placeID string, transaction storage.Transaction) error
}

type step struct {
	state State
	run   func(ctx context.Context, tx storage.Transaction) error

	// missingIsNotFound reports models.ErrNotFound from run as is, since the
	// record was already gone and nothing was written.
	missingIsNotFound bool
}

type Writer struct {
	db keeper
}

func New(db keeper) *Writer {
	return &Writer{db: db}
}

// CreatePlace stores p and adds it to its creator's place set. A missing
// creator is reported as models.ErrNotFound before anything is written;
// any later failure rolls back and yields models.ErrAssociationWriteFailed.
func (w *Writer) CreatePlace(ctx context.Context, p *place.Place) error {
	_, err := w.db.GetUserByID(ctx, p.Creator, nil)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("creator %s: %w", p.Creator, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("in internal/association/association.go/CreatePlace(): error while `w.db.GetUserByID()` calling: %w", err)
	}

	return w.write(ctx, p.ID, []step{
		{
			state: StateWritingPlace,
			run: func(ctx context.Context, tx storage.Transaction) error {
				return w.db.InsertPlace(ctx, p, tx)
			},
		},
		{
			state: StateLinkingUser,
			run: func(ctx context.Context, tx storage.Transaction) error {
				return w.db.LinkUserPlace(ctx, p.Creator, p.ID, tx)
			},
		},
	})
}

// DeletePlace removes p and detaches it from its creator's place set.
func (w *Writer) DeletePlace(ctx context.Context, p *place.Place) error {
	return w.write(ctx, p.ID, []step{
		{
			state: StateRemovingPlace,
			run: func(ctx context.Context, tx storage.Transaction) error {
				return w.db.DeletePlace(ctx, p.ID, tx)
			},
			missingIsNotFound: true,
		},
		{
			state: StateUnlinkingUser,
			run: func(ctx context.Context, tx storage.Transaction) error {
				return w.db.UnlinkUserPlace(ctx, p.Creator, p.ID, tx)
			},
		},
	})
}

// write runs steps in order inside one transaction. Once started it is not
// interrupted by the caller's cancellation.
func (w *Writer) write(ctx context.Context, placeID string, steps []step) (err error) {
	ctx = context.WithoutCancel(ctx)

	tx, err := w.db.BeginTransaction(ctx)
	if err != nil {
		logger.Log.Debugw("association write", "place", placeID, "state", StateFailed, zap.Error(err))
		return fmt.Errorf("%w: %w", models.ErrAssociationWriteFailed, err)
	}
	logger.Log.Debugw("association write", "place", placeID, "state", StateBegun)

	committed := false
	defer func() {
		if committed {
			return
		}
		if rollbackErr := w.db.RollbackTransaction(tx); rollbackErr != nil {
			logger.Log.Debugln("Error calling the `w.db.RollbackTransaction()`: ", zap.Error(rollbackErr))
		}
		logger.Log.Debugw("association write", "place", placeID, "state", StateFailed, zap.Error(err))
	}()

	for _, s := range steps {
		logger.Log.Debugw("association write", "place", placeID, "state", s.state)
		if err := s.run(ctx, tx); err != nil {
			if s.missingIsNotFound && errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("place %s: %w", placeID, err)
			}
			return fmt.Errorf("%w: %s: %w", models.ErrAssociationWriteFailed, s.state, err)
		}
	}

	if err := w.db.CommitTransaction(tx); err != nil {
		return fmt.Errorf("%w: commit: %w", models.ErrAssociationWriteFailed, err)
	}
	committed = true
	logger.Log.Debugw("association write", "place", placeID, "state", StateCommitted)

	return nil
}
