// Package router wires the HTTP surface of the places service: places and
// users endpoints, uploaded image serving and the service endpoints.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/placeshare/internal/auth"
	"github.com/patric-chuzhbe/placeshare/internal/authenticator"
	"github.com/patric-chuzhbe/placeshare/internal/gzippedhttp"
	"github.com/patric-chuzhbe/placeshare/internal/httperror"
	"github.com/patric-chuzhbe/placeshare/internal/ipchecker"
	"github.com/patric-chuzhbe/placeshare/internal/logger"
	"github.com/patric-chuzhbe/placeshare/internal/metrics"
	"github.com/patric-chuzhbe/placeshare/internal/models"
	"github.com/patric-chuzhbe/placeshare/internal/place"
	"github.com/patric-chuzhbe/placeshare/internal/ratelimit"
	"github.com/patric-chuzhbe/placeshare/internal/user"
)

const defaultMaxUploadSize = 500000

// multipartOverhead is the room left for the text fields and part headers of
// a multipart body on top of the image itself.
const multipartOverhead = 64 << 10

type placesService interface {
	GetPlaceByID(ctx context.Context, placeID string) (*place.Place, error)

	GetPlacesByUserID(ctx context.Context, userID string) ([]*place.Place, error)

	CreatePlace(ctx context.Context, request models.CreatePlaceRequest, image, creatorID string) (*place.Place, error)

	UpdatePlace(ctx context.Context, placeID string, request models.UpdatePlaceRequest, requesterID string) (*place.Place, error)

	DeletePlace(ctx context.Context, placeID, requesterID string) error
}

type usersService interface {
	GetUsers(ctx context.Context) ([]*user.User, error)

	Signup(ctx context.Context, request models.SignupRequest, image string) (*models.AuthResponse, error)

	Login(ctx context.Context, request models.LoginRequest) (*models.AuthResponse, error)
}

type service interface {
	placesService
	usersService

	Ping(ctx context.Context) error

	GetInternalStats(ctx context.Context) (*models.InternalStatsResponse, error)
}

type imageStore interface {
	Save(src io.Reader) (string, error)

	Delete(publicPath string) error

	Dir() string

	PublicPrefix() string
}

type Router struct {
	service       service
	images        imageStore
	maxUploadSize int64
}

type placeResponse struct {
	Place *place.Place `json:"place"`
}

type placesResponse struct {
	Places []*place.Place `json:"places"`
}

type usersResponse struct {
	Users []*user.User `json:"users"`
}

type InitOption func(*initOptions)

type initOptions struct {
	ipChecker     *ipchecker.IPChecker
	loginLimiter  *ratelimit.Limiter
	metrics       *metrics.Metrics
	maxUploadSize int64
}

// WithIPChecker guards the internal stats endpoint with a trusted subnet.
func WithIPChecker(checker *ipchecker.IPChecker) InitOption {
	return func(options *initOptions) {
		options.ipChecker = checker
	}
}

func WithLoginLimiter(limiter *ratelimit.Limiter) InitOption {
	return func(options *initOptions) {
		options.loginLimiter = limiter
	}
}

// WithMetrics records request metrics and exposes them on /metrics.
func WithMetrics(m *metrics.Metrics) InitOption {
	return func(options *initOptions) {
		options.metrics = m
	}
}

// WithMaxUploadSize limits the size of an uploaded image in bytes.
func WithMaxUploadSize(size int64) InitOption {
	return func(options *initOptions) {
		options.maxUploadSize = size
	}
}

func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		header := response.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE")

		if request.Method == http.MethodOptions && request.Header.Get("Access-Control-Request-Method") != "" {
			response.WriteHeader(http.StatusNoContent)
			return
		}

		h.ServeHTTP(response, request)
	})
}

func writeJSON(response http.ResponseWriter, status int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("Error calling the `json.NewEncoder(response).Encode()`: ", zap.Error(err))
	}
}

func requesterID(request *http.Request) (string, error) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		return "", models.ErrUnauthenticated
	}
	return userID, nil
}

func decodeJSON(request *http.Request, target any) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidationFailed, err)
	}
	return nil
}

func isJSONRequest(request *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(request.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// parseMultipart reads a multipart form whose image part may be at most
// maxUploadSize bytes.
func (router *Router) parseMultipart(response http.ResponseWriter, request *http.Request) error {
	request.Body = http.MaxBytesReader(response, request.Body, router.maxUploadSize+multipartOverhead)
	if err := request.ParseMultipartForm(router.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return httperror.New("File too large.", http.StatusUnprocessableEntity, err)
		}
		return fmt.Errorf("%w: %w", models.ErrValidationFailed, err)
	}
	return nil
}

// saveImage stores the "image" part of a parsed multipart form. It returns
// an empty path when the part is missing.
func (router *Router) saveImage(request *http.Request) (string, error) {
	file, header, err := request.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrValidationFailed, err)
	}
	defer file.Close()

	if header.Size > router.maxUploadSize {
		return "", httperror.New("File too large.", http.StatusUnprocessableEntity, models.ErrValidationFailed)
	}

	return router.images.Save(file)
}

// discardImage removes an image stored by a request that failed afterwards.
func (router *Router) discardImage(image string) {
	if image == "" {
		return
	}
	if err := router.images.Delete(image); err != nil {
		logger.Log.Debugln("Error calling the `router.images.Delete()`: ", zap.Error(err))
	}
}

func (router *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := router.service.Ping(request.Context()); err != nil {
		httperror.Write(response, err)
		return
	}

	response.WriteHeader(http.StatusOK)
}

func (router *Router) GetApiplacesPid(response http.ResponseWriter, request *http.Request) {
	p, err := router.service.GetPlaceByID(request.Context(), chi.URLParam(request, "pid"))
	if err != nil {
		httperror.Write(response, httperror.Rephrase(err, models.ErrNotFound, "Could not find a place for the provided id."))
		return
	}

	writeJSON(response, http.StatusOK, placeResponse{Place: p})
}

func (router *Router) GetApiplacesuserUid(response http.ResponseWriter, request *http.Request) {
	places, err := router.service.GetPlacesByUserID(request.Context(), chi.URLParam(request, "uid"))
	if err != nil {
		httperror.Write(response, httperror.Rephrase(err, models.ErrNotFound, "Could not find places for the provided user id."))
		return
	}

	writeJSON(response, http.StatusOK, placesResponse{Places: places})
}

func (router *Router) PostApiplaces(response http.ResponseWriter, request *http.Request) {
	creatorID, err := requesterID(request)
	if err != nil {
		httperror.Write(response, err)
		return
	}

	if err := router.parseMultipart(response, request); err != nil {
		httperror.Write(response, err)
		return
	}

	image, err := router.saveImage(request)
	if err != nil {
		httperror.Write(response, err)
		return
	}

	created := false
	defer func() {
		if !created {
			router.discardImage(image)
		}
	}()

	p, err := router.service.CreatePlace(
		request.Context(),
		models.CreatePlaceRequest{
			Title:       request.FormValue("title"),
			Description: request.FormValue("description"),
			Address:     request.FormValue("address"),
		},
		image,
		creatorID,
	)
	if err != nil {
		httperror.Write(response, httperror.Rephrase(err, models.ErrNotFound, "Could not find user for provided id."))
		return
	}
	created = true

	writeJSON(response, http.StatusCreated, placeResponse{Place: p})
}

func (router *Router) PatchApiplacesPid(response http.ResponseWriter, request *http.Request) {
	userID, err := requesterID(request)
	if err != nil {
		httperror.Write(response, err)
		return
	}

	var payload models.UpdatePlaceRequest
	if err := decodeJSON(request, &payload); err != nil {
		httperror.Write(response, err)
		return
	}

	p, err := router.service.UpdatePlace(request.Context(), chi.URLParam(request, "pid"), payload, userID)
	if err != nil {
		err = httperror.Rephrase(err, models.ErrForbidden, "You are not allowed to edit this place.")
		httperror.Write(response, httperror.Rephrase(err, models.ErrNotFound, "Could not find place for this id."))
		return
	}

	writeJSON(response, http.StatusOK, placeResponse{Place: p})
}

func (router *Router) DeleteApiplacesPid(response http.ResponseWriter, request *http.Request) {
	userID, err := requesterID(request)
	if err != nil {
		httperror.Write(response, err)
		return
	}

	err = router.service.DeletePlace(request.Context(), chi.URLParam(request, "pid"), userID)
	if err != nil {
		err = httperror.Rephrase(err, models.ErrForbidden, "You are not allowed to delete this place.")
		httperror.Write(response, httperror.Rephrase(err, models.ErrNotFound, "Could not find place for this id."))
		return
	}

	writeJSON(response, http.StatusOK, models.MessageResponse{Message: "Deleted place."})
}

func (router *Router) GetApiusers(response http.ResponseWriter, request *http.Request) {
	users, err := router.service.GetUsers(request.Context())
	if err != nil {
		httperror.Write(response, httperror.New("Fetching users failed, please try again later.", http.StatusInternalServerError, err))
		return
	}

	writeJSON(response, http.StatusOK, usersResponse{Users: users})
}

// PostApiuserssignup accepts a multipart form with an optional image, or a
// plain JSON body.
func (router *Router) PostApiuserssignup(response http.ResponseWriter, request *http.Request) {
	var (
		payload models.SignupRequest
		image   string
	)

	if isJSONRequest(request) {
		if err := decodeJSON(request, &payload); err != nil {
			httperror.Write(response, err)
			return
		}
	} else {
		if err := router.parseMultipart(response, request); err != nil {
			httperror.Write(response, err)
			return
		}
		var err error
		image, err = router.saveImage(request)
		if err != nil {
			httperror.Write(response, err)
			return
		}
		payload = models.SignupRequest{
			Name:     request.FormValue("name"),
			Email:    request.FormValue("email"),
			Password: request.FormValue("password"),
		}
	}

	signedUp := false
	defer func() {
		if !signedUp {
			router.discardImage(image)
		}
	}()

	result, err := router.service.Signup(request.Context(), payload, image)
	if err != nil {
		httperror.Write(response, err)
		return
	}
	signedUp = true

	writeJSON(response, http.StatusCreated, result)
}

func (router *Router) PostApiuserslogin(response http.ResponseWriter, request *http.Request) {
	var payload models.LoginRequest
	if err := decodeJSON(request, &payload); err != nil {
		httperror.Write(response, err)
		return
	}

	result, err := router.service.Login(request.Context(), payload)
	if err != nil {
		httperror.Write(response, err)
		return
	}

	writeJSON(response, http.StatusOK, result)
}

func (router *Router) GetApiinternalstats(response http.ResponseWriter, request *http.Request) {
	stats, err := router.service.GetInternalStats(request.Context())
	if err != nil {
		httperror.Write(response, err)
		return
	}

	writeJSON(response, http.StatusOK, stats)
}

func notFound(response http.ResponseWriter, _ *http.Request) {
	writeJSON(response, http.StatusNotFound, models.MessageResponse{Message: "Could not find this route."})
}

func methodNotAllowed(response http.ResponseWriter, _ *http.Request) {
	writeJSON(response, http.StatusMethodNotAllowed, models.MessageResponse{Message: "Method not allowed."})
}

// imagesHandler serves stored images and never lists the directory.
func imagesHandler(prefix, dir string) http.Handler {
	fileServer := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))

	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if strings.HasSuffix(request.URL.Path, "/") {
			notFound(response, request)
			return
		}
		fileServer.ServeHTTP(response, request)
	})
}

func New(
	svc service,
	images imageStore,
	authMiddleware authenticator.Authenticator,
	optionsProto ...InitOption,
) *chi.Mux {
	options := &initOptions{
		maxUploadSize: defaultMaxUploadSize,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}
	if options.ipChecker == nil {
		options.ipChecker, _ = ipchecker.New("")
	}

	myRouter := &Router{
		service:       svc,
		images:        images,
		maxUploadSize: options.maxUploadSize,
	}

	router := chi.NewRouter()
	router.Use(
		cors,
		logger.WithLoggingHTTPMiddleware,
	)
	if options.metrics != nil {
		router.Use(options.metrics.Middleware)
		router.Method(http.MethodGet, "/metrics", options.metrics.Handler())
	}
	router.NotFound(notFound)
	router.MethodNotAllowed(methodNotAllowed)

	imagesPrefix := "/" + images.PublicPrefix() + "/"
	router.Method(http.MethodGet, imagesPrefix+"*", imagesHandler(imagesPrefix, images.Dir()))

	router.Get(`/ping`, myRouter.GetPing)

	router.Group(func(api chi.Router) {
		api.Use(
			gzippedhttp.UngzipRequest,
			gzippedhttp.GzipJSONResponse,
		)

		api.Route("/api/places", func(places chi.Router) {
			places.Get(`/user/{uid}`, myRouter.GetApiplacesuserUid)
			places.Get(`/{pid}`, myRouter.GetApiplacesPid)

			places.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.AuthenticateUser)
				protected.Post(`/`, myRouter.PostApiplaces)
				protected.Patch(`/{pid}`, myRouter.PatchApiplacesPid)
				protected.Delete(`/{pid}`, myRouter.DeleteApiplacesPid)
			})
		})

		api.Route("/api/users", func(users chi.Router) {
			users.Get(`/`, myRouter.GetApiusers)
			users.Post(`/signup`, myRouter.PostApiuserssignup)
			if options.loginLimiter != nil {
				users.With(options.loginLimiter.Handler).Post(`/login`, myRouter.PostApiuserslogin)
			} else {
				users.Post(`/login`, myRouter.PostApiuserslogin)
			}
		})

		api.With(options.ipChecker.TrustedSubnetOnly).Get(`/api/internal/stats`, myRouter.GetApiinternalstats)
	})

	return router
}
