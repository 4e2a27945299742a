package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/placeshare/internal/db/storage"
	"github.com/patric-chuzhbe/placeshare/internal/logger"
	"github.com/patric-chuzhbe/placeshare/internal/models"
	"github.com/patric-chuzhbe/placeshare/internal/place"
	"github.com/patric-chuzhbe/placeshare/internal/user"
)

type placeKeeper interface {
	GetPlaceByID(ctx context.Context, placeID string, transaction storage.Transaction) (*place.Place, error)

	GetPlacesByCreator(ctx context.Context, userID string) ([]*place.Place, error)

	UpdatePlace(ctx context.Context, p *place.Place, transaction storage.Transaction) error

	GetNumberOfPlaces(ctx context.Context) (int64, error)
}

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User, transaction storage.Transaction) (string, error)

	GetUserByID(ctx context.Context, userID string, transaction storage.Transaction) (*user.User, error)

	GetUserByEmail(ctx context.Context, email string, transaction storage.Transaction) (*user.User, error)

	GetUsers(ctx context.Context) ([]*user.User, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type store interface {
	placeKeeper
	userKeeper
	pinger
}

type associationWriter interface {
	CreatePlace(ctx context.Context, p *place.Place) error

	DeletePlace(ctx context.Context, p *place.Place) error
}

type geocoder interface {
	Coordinates(ctx context.Context, address string) (models.Location, error)
}

type tokenIssuer interface {
	IssueToken(userID, email string) (string, error)
}

type imagesRemover interface {
	EnqueueJob(job *models.ImageDeleteJob) bool
}

// dummyPassword is compared against when a login names an unknown email, so
// both failure paths cost one bcrypt comparison.
const dummyPassword = "placeshare-dummy-password"

type Service struct {
	db               store
	writer           associationWriter
	geocoder         geocoder
	tokens           tokenIssuer
	imagesRemover    imagesRemover
	validate         *validator.Validate
	bcryptCost       int
	defaultUserImage string

	dummyHashOnce sync.Once
	dummyHash     []byte
}

type InitOption func(*Service)

func WithBcryptCost(cost int) InitOption {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithDefaultUserImage sets the image given to users that sign up without one.
func WithDefaultUserImage(path string) InitOption {
	return func(s *Service) {
		s.defaultUserImage = path
	}
}

func New(
	db store,
	writer associationWriter,
	geocoder geocoder,
	tokens tokenIssuer,
	imagesRemover imagesRemover,
	optionsProto ...InitOption,
) *Service {
	s := &Service{
		db:            db,
		writer:        writer,
		geocoder:      geocoder,
		tokens:        tokens,
		imagesRemover: imagesRemover,
		validate:      validator.New(),
		bcryptCost:    bcrypt.DefaultCost,
	}
	for _, protoOption := range optionsProto {
		protoOption(s)
	}

	return s
}

func (s *Service) validateRequest(request any) error {
	if err := s.validate.Struct(request); err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidationFailed, err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetPlaceByID returns the place or models.ErrNotFound.
func (s *Service) GetPlaceByID(ctx context.Context, placeID string) (*place.Place, error) {
	p, err := s.db.GetPlaceByID(ctx, models.CanonicalID(placeID), nil)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetPlaceByID(): error while `s.db.GetPlaceByID()` calling: %w", err)
	}

	return p, nil
}

// GetPlacesByUserID lists the places created by the user. Both an unknown
// user and a user without places yield models.ErrNotFound.
func (s *Service) GetPlacesByUserID(ctx context.Context, userID string) ([]*place.Place, error) {
	userID = models.CanonicalID(userID)
	if _, err := s.db.GetUserByID(ctx, userID, nil); err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetPlacesByUserID(): error while `s.db.GetUserByID()` calling: %w", err)
	}

	places, err := s.db.GetPlacesByCreator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetPlacesByUserID(): error while `s.db.GetPlacesByCreator()` calling: %w", err)
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("user %s has no places: %w", userID, models.ErrNotFound)
	}

	return places, nil
}

// CreatePlace validates the request, resolves the address and stores the
// place together with the creator's back-reference.
func (s *Service) CreatePlace(
	ctx context.Context,
	request models.CreatePlaceRequest,
	image string,
	creatorID string,
) (*place.Place, error) {
	request.Title = strings.TrimSpace(request.Title)
	request.Description = strings.TrimSpace(request.Description)
	request.Address = strings.TrimSpace(request.Address)
	if err := s.validateRequest(request); err != nil {
		return nil, err
	}
	if image == "" {
		return nil, fmt.Errorf("%w: an image is required", models.ErrValidationFailed)
	}

	location, err := s.geocoder.Coordinates(ctx, request.Address)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/CreatePlace(): error while `s.geocoder.Coordinates()` calling: %w", err)
	}

	p := &place.Place{
		ID:          models.NewID(),
		Title:       request.Title,
		Description: request.Description,
		Image:       image,
		Address:     request.Address,
		Location:    location,
		Creator:     models.CanonicalID(creatorID),
	}
	if err := s.writer.CreatePlace(ctx, p); err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/CreatePlace(): error while `s.writer.CreatePlace()` calling: %w", err)
	}

	return p, nil
}

func (s *Service) getOwnedPlace(ctx context.Context, placeID, requesterID string) (*place.Place, error) {
	p, err := s.db.GetPlaceByID(ctx, models.CanonicalID(placeID), nil)
	if err != nil {
		return nil, err
	}
	if !p.IsCreatedBy(models.CanonicalID(requesterID)) {
		return nil, models.ErrForbidden
	}

	return p, nil
}

// UpdatePlace overwrites title and description of a place owned by the requester.
func (s *Service) UpdatePlace(
	ctx context.Context,
	placeID string,
	request models.UpdatePlaceRequest,
	requesterID string,
) (*place.Place, error) {
	request.Title = strings.TrimSpace(request.Title)
	request.Description = strings.TrimSpace(request.Description)
	if err := s.validateRequest(request); err != nil {
		return nil, err
	}

	p, err := s.getOwnedPlace(ctx, placeID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/UpdatePlace(): error while `s.getOwnedPlace()` calling: %w", err)
	}

	p.Title = request.Title
	p.Description = request.Description
	if err := s.db.UpdatePlace(ctx, p, nil); err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/UpdatePlace(): error while `s.db.UpdatePlace()` calling: %w", err)
	}

	return p, nil
}

// DeletePlace removes a place owned by the requester and schedules the
// removal of its image. The image removal may fail on its own.
func (s *Service) DeletePlace(ctx context.Context, placeID, requesterID string) error {
	p, err := s.getOwnedPlace(ctx, placeID, requesterID)
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/DeletePlace(): error while `s.getOwnedPlace()` calling: %w", err)
	}

	if err := s.writer.DeletePlace(ctx, p); err != nil {
		return fmt.Errorf("in internal/service/service.go/DeletePlace(): error while `s.writer.DeletePlace()` calling: %w", err)
	}

	if s.imagesRemover != nil && !s.imagesRemover.EnqueueJob(&models.ImageDeleteJob{PlaceID: p.ID, ImagePath: p.Image}) {
		logger.Log.Warnw("image of deleted place was not scheduled for removal", "place", p.ID, "image", p.Image)
	}

	return nil
}

func (s *Service) GetUsers(ctx context.Context) ([]*user.User, error) {
	users, err := s.db.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetUsers(): error while `s.db.GetUsers()` calling: %w", err)
	}

	return users, nil
}

// Signup creates an account and returns a token for it. An email that is
// already registered yields models.ErrConflict.
func (s *Service) Signup(ctx context.Context, request models.SignupRequest, image string) (*models.AuthResponse, error) {
	request.Name = strings.TrimSpace(request.Name)
	request.Email = normalizeEmail(request.Email)
	if err := s.validateRequest(request); err != nil {
		return nil, err
	}

	_, err := s.db.GetUserByEmail(ctx, request.Email, nil)
	if err == nil {
		return nil, fmt.Errorf("email %s: %w", request.Email, models.ErrConflict)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("in internal/service/service.go/Signup(): error while `s.db.GetUserByEmail()` calling: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/Signup(): error while `bcrypt.GenerateFromPassword()` calling: %w", err)
	}

	if image == "" {
		image = s.defaultUserImage
	}

	usr := &user.User{
		Name:     request.Name,
		Email:    request.Email,
		Password: string(hash),
		Image:    image,
		Places:   []string{},
	}
	userID, err := s.db.CreateUser(ctx, usr, nil)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/Signup(): error while `s.db.CreateUser()` calling: %w", err)
	}

	return s.authResponse(userID, usr.Email)
}

func (s *Service) compareDummy(password string) {
	s.dummyHashOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), s.bcryptCost)
		if err != nil {
			logger.Log.Errorw("could not prepare dummy password hash", zap.Error(err))
		}
		s.dummyHash = hash
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

// Login checks the credentials and returns a fresh token.
func (s *Service) Login(ctx context.Context, request models.LoginRequest) (*models.AuthResponse, error) {
	email := normalizeEmail(request.Email)

	usr, err := s.db.GetUserByEmail(ctx, email, nil)
	if errors.Is(err, models.ErrNotFound) {
		s.compareDummy(request.Password)
		return nil, fmt.Errorf("unknown email %s: %w", email, models.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/Login(): error while `s.db.GetUserByEmail()` calling: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(usr.Password), []byte(request.Password)); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidCredentials, err)
	}

	return s.authResponse(usr.ID, usr.Email)
}

func (s *Service) authResponse(userID, email string) (*models.AuthResponse, error) {
	token, err := s.tokens.IssueToken(userID, email)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/authResponse(): error while `s.tokens.IssueToken()` calling: %w", err)
	}

	return &models.AuthResponse{
		UserID: userID,
		Email:  email,
		Token:  token,
	}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetInternalStats counts stored places and users.
func (s *Service) GetInternalStats(ctx context.Context) (*models.InternalStatsResponse, error) {
	places, err := s.db.GetNumberOfPlaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetInternalStats(): error while `s.db.GetNumberOfPlaces()` calling: %w", err)
	}

	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetInternalStats(): error while `s.db.GetNumberOfUsers()` calling: %w", err)
	}

	return &models.InternalStatsResponse{
		Places: places,
		Users:  users,
	}, nil
}
