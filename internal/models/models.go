package models

import "errors"

type CreatePlaceRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required,min=5"`
	Address     string `json:"address" validate:"required"`
}

type UpdatePlaceRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required,min=5"`
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Location is a resolved coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type InternalStatsResponse struct {
	Places int64 `json:"places"`
	Users  int64 `json:"users"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

// ImageDeleteJob asks the background remover to release a stored image.
type ImageDeleteJob struct {
	PlaceID   string
	ImagePath string
}

var (
	ErrValidationFailed       = errors.New("invalid inputs passed")
	ErrUnauthenticated        = errors.New("authentication failed")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrForbidden              = errors.New("requester is not the creator")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("user exists already")
	ErrAddressNotFound        = errors.New("could not find location for the specified address")
	ErrAssociationWriteFailed = errors.New("association write failed")
	ErrTooManyRequests        = errors.New("too many requests")
)
