// Package openapi serves the query performance API documented by an embedded openapi spec
package openapi

import (
	"bytes"
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/transport/openapi/middlewares"
	"github.com/autom8ter/querylens/util"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

//go:embed openapi.yaml.tmpl
var openapiTemplate string

const (
	// DefaultFeedInterval is the query stats feed interval used when none is requested
	DefaultFeedInterval = 30 * time.Second
	// MinFeedInterval is the shortest query stats feed interval
	MinFeedInterval = time.Second

	shutdownTimeout = 10 * time.Second
)

// Config are custom params for the openapi server
type Config struct {
	Title            string        `json:"title" validate:"required"`
	Version          string        `json:"version" validate:"required"`
	Description      string        `json:"description"`
	Port             int           `json:"port" validate:"required,min=1,max=65535"`
	CORSOrigins      []string      `json:"cors_origins"`
	ValidateRequests bool          `json:"validate_requests"`
	FeedInterval     time.Duration `json:"feed_interval"`
}

// Server serves the service over http
type Server struct {
	params    Config
	svc       *querylens.Service
	logger    querylens.Logger
	router    *mux.Router
	handler   http.Handler
	upgrader  websocket.Upgrader
	spec      []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New renders the openapi spec and registers the routes of the service
func New(params Config, svc *querylens.Service, logger querylens.Logger, mwares ...mux.MiddlewareFunc) (*Server, error) {
	if err := util.ValidateStruct(params); err != nil {
		return nil, err
	}
	if params.FeedInterval <= 0 {
		params.FeedInterval = DefaultFeedInterval
	}
	if logger == nil {
		logger = querylens.NewNopLogger()
	}
	o := &Server{
		params: params,
		svc:    svc,
		logger: logger,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(params.CORSOrigins) == 0 || lo.Contains(params.CORSOrigins, "*") || lo.Contains(params.CORSOrigins, origin)
			},
		},
		done: make(chan struct{}),
	}
	spec, err := o.renderSpec()
	if err != nil {
		return nil, err
	}
	o.spec = spec
	mwares = append([]mux.MiddlewareFunc{middlewares.RequestID(), middlewares.Logger(logger)}, mwares...)
	if params.ValidateRequests {
		validator, err := middlewares.OpenAPIValidator(spec)
		if err != nil {
			return nil, err
		}
		mwares = append(mwares, validator)
	}
	o.registerRoutes(mwares)
	o.handler = middlewares.Recovery(logger)(middlewares.CORS(params.CORSOrigins)(o.router))
	return o, nil
}

func (o *Server) renderSpec() ([]byte, error) {
	t, err := template.New("").Funcs(sprig.FuncMap()).Parse(openapiTemplate)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to parse openapi template")
	}
	buf := bytes.NewBuffer(nil)
	err = t.Execute(buf, map[string]any{
		"title":             o.params.Title,
		"description":       o.params.Description,
		"version":           o.params.Version,
		"browse_limit":      querylens.DefaultBrowseLimit,
		"search_limit":      querylens.DefaultSearchLimit,
		"sort_field":        querylens.DefaultSortField,
		"orders":            []querylens.OrderByDirection{querylens.ASC, querylens.DESC},
		"max_run_ids":       o.svc.MaxRunIDs(),
		"run_id_collection": o.svc.RunIDCollection(),
		"feed_interval":     o.params.FeedInterval.String(),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to render openapi spec")
	}
	return buf.Bytes(), nil
}

func (o *Server) registerRoutes(mwares []mux.MiddlewareFunc) {
	o.router.Use(mwares...)
	o.router.HandleFunc("/api/openapi.yaml", o.specHandler()).Methods(http.MethodGet)
	o.router.HandleFunc("/api/collections", o.collectionsHandler()).Methods(http.MethodGet)
	o.router.HandleFunc("/api/run-ids", o.runIDsHandler()).Methods(http.MethodGet)
	o.router.HandleFunc("/api/data/{collection}", o.dataHandler()).Methods(http.MethodGet)
	o.router.HandleFunc("/api/search/{collection}", o.searchHandler()).Methods(http.MethodPost)
	o.router.HandleFunc("/api/querystats", o.queryStatsHandler()).Methods(http.MethodPost)
	o.router.HandleFunc("/api/querystats/feed", o.feedHandler()).Methods(http.MethodGet)
}

// Spec returns the rendered openapi spec
func (o *Server) Spec() []byte {
	return o.spec
}

// Handler returns the http handler of the server
func (o *Server) Handler() http.Handler {
	return o.handler
}

// Close stops the open query stats feeds
func (o *Server) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
	})
}

// Serve serves http requests until the context is cancelled, then shuts down gracefully
func (o *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", o.params.Port),
		Handler:           o.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	egp, ctx := errgroup.WithContext(ctx)
	egp.Go(func() error {
		o.logger.Info(ctx, "starting http server", map[string]any{"port": o.params.Port})
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, errors.Internal, "http server failed")
		}
		return nil
	})
	egp.Go(func() error {
		<-ctx.Done()
		o.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		o.logger.Info(shutdownCtx, "shutting down http server", map[string]any{})
		return srv.Shutdown(shutdownCtx)
	})
	return egp.Wait()
}
