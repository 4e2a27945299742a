// Package app initializes and runs the places sharing service.
// It configures logging, storage, authentication, geocoding and routing,
// and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/placeshare/internal/association"
	"github.com/patric-chuzhbe/placeshare/internal/auth"
	"github.com/patric-chuzhbe/placeshare/internal/config"
	"github.com/patric-chuzhbe/placeshare/internal/db/jsondb"
	"github.com/patric-chuzhbe/placeshare/internal/db/memorystorage"
	"github.com/patric-chuzhbe/placeshare/internal/db/postgresdb"
	"github.com/patric-chuzhbe/placeshare/internal/db/storage"
	"github.com/patric-chuzhbe/placeshare/internal/geocoder"
	"github.com/patric-chuzhbe/placeshare/internal/imagesremover"
	"github.com/patric-chuzhbe/placeshare/internal/imagestore"
	"github.com/patric-chuzhbe/placeshare/internal/ipchecker"
	"github.com/patric-chuzhbe/placeshare/internal/logger"
	"github.com/patric-chuzhbe/placeshare/internal/metrics"
	"github.com/patric-chuzhbe/placeshare/internal/models"
	"github.com/patric-chuzhbe/placeshare/internal/ratelimit"
	"github.com/patric-chuzhbe/placeshare/internal/router"
	"github.com/patric-chuzhbe/placeshare/internal/service"
)

const (
	shutdownTimeout         = 10 * time.Second
	loginLimiterIdleTimeout = 10 * time.Minute
)

// App encapsulates the configuration, HTTP handler, storage backend,
// and background services (such as the images remover) needed to run the
// places sharing service.
type App struct {
	cfg            *config.Config
	db             storage.Storage
	geocoderCache  *geocoder.RedisCache
	imagesRemover  *imagesremover.ImagesRemover
	loginLimiter   *ratelimit.Limiter
	backgroundCtx  context.Context
	stopBackground context.CancelFunc
	httpHandler    http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - setting up the geocoder and its optional Redis cache
// - setting up the background images remover
// - setting up the router and middleware
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	signingKey, err := app.cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	if app.cfg.EphemeralSigningKey {
		logger.Log.Warnln("AUTH_TOKEN_SIGNING_SECRET_KEY is not set, tokens are signed with a random key and will not survive a restart")
	}
	theAuth := auth.New(signingKey, app.cfg.AuthTokenTTL)

	geocoderOptions := []geocoder.InitOption{
		geocoder.WithUserAgent(app.cfg.GeocoderUserAgent),
		geocoder.WithTimeout(app.cfg.GeocoderTimeout),
		geocoder.WithRetry(app.cfg.GeocoderRetryCount, app.cfg.GeocoderRetryWait, app.cfg.GeocoderRetryMaxWait),
	}
	if app.cfg.RedisAddr != "" {
		app.geocoderCache, err = geocoder.NewRedisCache(
			context.Background(),
			app.cfg.RedisAddr,
			app.cfg.RedisPassword,
			app.cfg.RedisDB,
		)
		if err != nil {
			return nil, err
		}
		geocoderOptions = append(geocoderOptions, geocoder.WithCache(app.geocoderCache, app.cfg.GeocoderCacheTTL))
	}

	images, err := imagestore.New(app.cfg.UploadsDir)
	if err != nil {
		return nil, err
	}

	app.backgroundCtx, app.stopBackground = context.WithCancel(context.Background())

	app.imagesRemover = imagesremover.New(
		images,
		app.cfg.ChannelCapacity,
		app.cfg.DelayBetweenQueueFetches,
	)
	app.imagesRemover.Run(app.backgroundCtx)
	app.imagesRemover.ListenErrors(func(err error) {
		logger.Log.Debugln("Error passed from the `app.imagesRemover.ListenErrors()`:", zap.Error(err))
	})

	svc := service.New(
		app.db,
		association.New(app.db),
		geocoder.New(app.cfg.GeocoderURL, geocoderOptions...),
		theAuth,
		app.imagesRemover,
		service.WithDefaultUserImage(app.cfg.DefaultUserImage),
	)

	checker, err := ipchecker.New(app.cfg.TrustedSubnet, ipchecker.WithTrustedProxies(app.cfg.TrustedProxies...))
	if err != nil {
		return nil, err
	}

	routerOptions := []router.InitOption{
		router.WithIPChecker(checker),
		router.WithMetrics(metrics.New()),
		router.WithMaxUploadSize(app.cfg.MaxUploadSize),
	}
	if app.cfg.LoginRateLimit > 0 {
		app.loginLimiter = ratelimit.New(
			app.cfg.LoginRateLimit,
			app.cfg.LoginRateBurst,
			ratelimit.WithKeyFunc(checker.ClientKey),
		)
		routerOptions = append(routerOptions, router.WithLoginLimiter(app.loginLimiter))
		go app.cleanupLoginLimiter()
	}

	app.httpHandler = router.New(svc, images, theAuth, routerOptions...)

	return app, nil
}

func (a *App) cleanupLoginLimiter() {
	ticker := time.NewTicker(loginLimiterIdleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-a.backgroundCtx.Done():
			return
		case <-ticker.C:
			a.loginLimiter.Cleanup(loginLimiterIdleTimeout)
		}
	}
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Finishing in-flight requests and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.release(shutdownCtx)

	case err := <-serverErrCh:
		releaseErr := a.release(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return releaseErr
		}
		return errors.Join(fmt.Errorf("server error: %w", err), releaseErr)
	}
}

// release stops the background workers and closes the storage. Queued image
// removals are flushed before the storage goes away.
func (a *App) release(ctx context.Context) error {
	a.stopBackground()
	select {
	case <-a.imagesRemover.Done():
	case <-ctx.Done():
		logger.Log.Warnln("images remover did not finish before the shutdown deadline")
	}

	var errs []error
	if a.geocoderCache != nil {
		if err := a.geocoderCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("geocoder cache close error: %w", err))
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage close error: %w", err))
	}

	return errors.Join(errs...)
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
