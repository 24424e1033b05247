package restserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/climate-api/internal/constants"
	"github.com/chrissnell/climate-api/internal/database"
	"github.com/chrissnell/climate-api/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ClimateStore is the read-only data access the REST server needs.
// *database.Client satisfies it.
type ClimateStore interface {
	PrecipitationByDate(ctx context.Context) ([]database.DailyPrecipitation, error)
	StationNames(ctx context.Context) ([]string, error)
	LatestDate(ctx context.Context) (string, error)
	TemperatureObservations(ctx context.Context, reference time.Time, windowDays int) ([]database.TemperatureObservation, error)
	TemperatureSummaryFrom(ctx context.Context, start string) ([]database.TemperatureSummary, error)
	TemperatureSummaryBetween(ctx context.Context, start, end string) (database.TemperatureSummary, error)
	Ping(ctx context.Context) error
}

// Controller represents the REST server controller
type Controller struct {
	ctx           context.Context
	wg            *sync.WaitGroup
	restConfig    config.RESTServerData
	climateConfig config.ClimateData
	Server        http.Server
	Store         ClimateStore
	logger        *zap.SugaredLogger
	handlers      *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, store ClimateStore, logger *zap.SugaredLogger) (*Controller, error) {
	if store == nil {
		return nil, errors.New("REST server requires a climate store")
	}

	rc := cfg.REST

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}

	if rc.Port == 0 {
		logger.Info("rest.port not provided; defaulting to 5000")
		rc.Port = 5000
	}

	ctrl := &Controller{
		ctx:           ctx,
		wg:            wg,
		restConfig:    rc,
		climateConfig: cfg.Climate,
		Store:         store,
		logger:        logger,
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = net.JoinHostPort(rc.ListenAddr, fmt.Sprint(rc.Port))
	ctrl.Server.Handler = ctrl.wrapMiddleware(ctrl.setupRouter())
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// Handler returns the fully wrapped HTTP handler
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// StartController binds the listen address and serves until the controller's
// context is cancelled. Bind errors are returned immediately.
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server controller on %s...", c.Server.Addr)

	ln, err := net.Listen("tcp", c.Server.Addr)
	if err != nil {
		return fmt.Errorf("REST server could not listen on %s: %w", c.Server.Addr, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		var err error
		if c.restConfig.TLSCertPath != "" && c.restConfig.TLSKeyPath != "" {
			err = c.Server.ServeTLS(ln, c.restConfig.TLSCertPath, c.restConfig.TLSKeyPath)
		} else {
			err = c.Server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Server.Shutdown(shutdownCtx); err != nil {
			c.logger.Errorf("REST server shutdown error: %v", err)
		}
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints.
// Fixed API paths are registered before the {start} patterns so they win.
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", c.handlers.ServeIndex).Methods(http.MethodGet)
	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)

	router.HandleFunc(constants.APIPrefix+"/precipitation", c.handlers.GetPrecipitation).Methods(http.MethodGet)
	router.HandleFunc(constants.APIPrefix+"/stations", c.handlers.GetStations).Methods(http.MethodGet)
	router.HandleFunc(constants.APIPrefix+"/tobs", c.handlers.GetTemperatureObservations).Methods(http.MethodGet)
	router.HandleFunc(constants.APIPrefix+"/{start}", c.handlers.GetTemperatureSummaryFrom).Methods(http.MethodGet)
	router.HandleFunc(constants.APIPrefix+"/{start}/{end}", c.handlers.GetTemperatureSummaryBetween).Methods(http.MethodGet)

	return router
}

// referenceDate resolves the end of the tobs window. ok is false when the
// reference is "latest" and the store holds no measurements.
func (c *Controller) referenceDate(ctx context.Context) (ref time.Time, ok bool, err error) {
	value := c.climateConfig.ReferenceDate
	if value == config.ReferenceDateLatest {
		value, err = c.Store.LatestDate(ctx)
		if err != nil {
			return time.Time{}, false, err
		}
		if value == "" {
			return time.Time{}, false, nil
		}
		// Stores that keep timestamps in the date column still sort by day first
		if len(value) > len(config.DateLayout) {
			value = value[:len(config.DateLayout)]
		}
	}

	ref, err = time.Parse(config.DateLayout, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid reference date %q: %w", value, err)
	}
	return ref, true, nil
}
