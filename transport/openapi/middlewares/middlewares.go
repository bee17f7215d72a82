package middlewares

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/transport/openapi/httpError"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/segmentio/ksuid"
)

// RequestIDHeader carries the request id of every request
const RequestIDHeader = "X-Request-Id"

// OpenAPIValidator validates inbound requests against the openapi spec.
// Requests for routes the spec does not declare are rejected with 404.
func OpenAPIValidator(spec []byte) (mux.MiddlewareFunc, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to load openapi spec")
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, errors.Wrap(err, errors.Internal, "invalid openapi spec")
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to configure openapi router")
	}
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				httpError.Error(w, errors.Wrap(err, errors.NotFound, "route not found"))
				return
			}
			requestValidationInput := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{AuthenticationFunc: func(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
					return nil
				}},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), requestValidationInput); err != nil {
				httpError.Error(w, errors.WrapKind(err, errors.ErrInvalidArgument, "invalid request"))
				return
			}
			handler.ServeHTTP(w, r)
		})
	}, nil
}

// RequestID propagates the inbound X-Request-Id or assigns a new one
func RequestID() mux.MiddlewareFunc {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = ksuid.New().String()
			}
			w.Header().Set(RequestIDHeader, id)
			handler.ServeHTTP(w, r.WithContext(querylens.WithRequestID(r.Context(), id)))
		})
	}
}

// Logger logs every request with its method, path, status and duration
func Logger(logger querylens.Logger) mux.MiddlewareFunc {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			handler.ServeHTTP(rec, r)
			tags := map[string]any{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": float64(time.Since(start).Microseconds()) / float64(1000),
			}
			if vars := mux.Vars(r); len(vars) > 0 {
				tags["request.vars"] = vars
			}
			if rec.status >= http.StatusInternalServerError {
				logger.Error(r.Context(), "request failed", tags)
				return
			}
			logger.Debug(r.Context(), "request served", tags)
		})
	}
}

// CORS allows cross origin requests from the given origins
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
		handlers.ExposedHeaders([]string{RequestIDHeader}),
	)
}

// Recovery recovers panics, logs them and responds with 500
func Recovery(logger querylens.Logger) func(http.Handler) http.Handler {
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger: logger}))
}

type recoveryLogger struct {
	logger querylens.Logger
}

func (r recoveryLogger) Println(args ...any) {
	r.logger.Error(context.Background(), "recovered from panic", map[string]any{
		"panic": fmt.Sprint(args...),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades through the recorder
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New(errors.Internal, "response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (s *statusRecorder) Flush() {
	if flusher, ok := s.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
