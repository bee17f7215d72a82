package openapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/store/embedded"
	"github.com/autom8ter/querylens/testutil"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func testConfig(validate bool) Config {
	return Config{
		Title:            "testing",
		Version:          "v0.0.0",
		Description:      "testing openapi schema",
		Port:             8080,
		ValidateRequests: validate,
	}
}

func seed(ctx context.Context, t *testing.T, store *embedded.Store) {
	ts := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	_, err := store.Insert(ctx, testutil.RunIDCollection, testutil.NewRunRecord("r1", &ts))
	assert.NoError(t, err)
	_, err = store.Insert(ctx, testutil.PerfCollection,
		testutil.NewResultDoc("r1"),
		testutil.NewResultDoc("r1"),
		testutil.NewResultDoc("r1"),
		testutil.NewResultDoc("r2"),
	)
	assert.NoError(t, err)
	_, err = store.Insert(ctx, embedded.QueryStatsCollection, testutil.NewQueryStatsDoc())
	assert.NoError(t, err)
}

func do(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	var result map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	}
	return w, result
}

func TestSpec(t *testing.T) {
	assert.NoError(t, testutil.TestStore(func(ctx context.Context, store *embedded.Store) {
		o, err := New(testConfig(false), querylens.New(store), nil)
		assert.NoError(t, err)
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(o.Spec())
		assert.NoError(t, err)
		assert.NoError(t, doc.Validate(loader.Context))
		assert.Equal(t, "testing", doc.Info.Title)
		for _, path := range []string{"/collections", "/run-ids", "/data/{collection}", "/search/{collection}", "/querystats", "/querystats/feed", "/openapi.yaml"} {
			assert.NotNil(t, doc.Paths.Find(path), path)
		}
		t.Run("every route is documented", func(t *testing.T) {
			assert.NoError(t, o.router.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
				tpl, err := route.GetPathTemplate()
				assert.NoError(t, err)
				assert.NotNil(t, doc.Paths.Find(strings.TrimPrefix(tpl, "/api")), tpl)
				return nil
			}))
		})
		t.Run("serve yaml", func(t *testing.T) {
			w, _ := do(t, o.Handler(), http.MethodGet, "/api/openapi.yaml", "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, string(o.Spec()), w.Body.String())
		})
		t.Run("serve json", func(t *testing.T) {
			w, result := do(t, o.Handler(), http.MethodGet, "/api/openapi.yaml?format=json", "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "3.0.3", result["openapi"])
		})
	}))
	t.Run("invalid config", func(t *testing.T) {
		_, err := New(Config{Title: "testing"}, querylens.New(nil), nil)
		assert.Error(t, err)
	})
}

func TestRoutes(t *testing.T) {
	for _, validate := range []bool{false, true} {
		validate := validate
		name := "unvalidated"
		if validate {
			name = "validated"
		}
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, testutil.TestStore(func(ctx context.Context, store *embedded.Store) {
				seed(ctx, t, store)
				o, err := New(testConfig(validate), querylens.New(store), querylens.NewNopLogger())
				assert.NoError(t, err)
				handler := o.Handler()

				t.Run("collections", func(t *testing.T) {
					w, result := do(t, handler, http.MethodGet, "/api/collections", "")
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, true, result["success"])
					assert.Equal(t, []any{testutil.PerfCollection, testutil.RunIDCollection, embedded.QueryStatsCollection}, result["collections"])
					assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
				})
				t.Run("run ids", func(t *testing.T) {
					w, result := do(t, handler, http.MethodGet, "/api/run-ids", "")
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, []any{"r1 | 2024-01-15 11:00:00"}, result["runIds"])
					assert.Equal(t, float64(1), result["count"])
				})
				t.Run("data", func(t *testing.T) {
					w, result := do(t, handler, http.MethodGet, "/api/data/perf?limit=3&skip=0&order=asc", "")
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, true, result["success"])
					assert.Equal(t, "perf", result["collection"])
					assert.Equal(t, float64(4), result["totalCount"])
					assert.Equal(t, float64(1), result["currentPage"])
					assert.Equal(t, float64(2), result["totalPages"])
					assert.Equal(t, float64(3), result["limit"])
					assert.Len(t, result["data"], 3)
					assert.Equal(t, "_id", result["headers"].([]any)[0])
					assert.NotContains(t, result, "query")
				})
				t.Run("data defaults", func(t *testing.T) {
					w, result := do(t, handler, http.MethodGet, "/api/data/perf", "")
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, float64(querylens.DefaultBrowseLimit), result["limit"])
				})
				t.Run("data unknown collection", func(t *testing.T) {
					w, result := do(t, handler, http.MethodGet, "/api/data/missing", "")
					assert.Equal(t, http.StatusNotFound, w.Code)
					assert.Equal(t, false, result["success"])
					assert.NotEmpty(t, result["error"])
				})
				t.Run("data bad limit", func(t *testing.T) {
					w, result := do(t, handler, http.MethodGet, "/api/data/perf?limit=abc", "")
					assert.Equal(t, http.StatusBadRequest, w.Code)
					assert.Equal(t, false, result["success"])
				})
				t.Run("data zero padded paging", func(t *testing.T) {
					w, result := do(t, handler, http.MethodGet, "/api/data/perf?limit=01&skip=010", "")
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, float64(1), result["limit"])
					assert.Equal(t, float64(11), result["currentPage"])
					assert.Equal(t, float64(4), result["totalPages"])
					assert.Len(t, result["data"], 0)
				})
				t.Run("data hex skip", func(t *testing.T) {
					w, _ := do(t, handler, http.MethodGet, "/api/data/perf?skip=0x10", "")
					assert.Equal(t, http.StatusBadRequest, w.Code)
				})
				t.Run("data negative limit", func(t *testing.T) {
					w, _ := do(t, handler, http.MethodGet, "/api/data/perf?limit=-1", "")
					assert.Equal(t, http.StatusBadRequest, w.Code)
				})
				t.Run("search", func(t *testing.T) {
					w, result := do(t, handler, http.MethodPost, "/api/search/perf", `{"query":{"run_id":"r1"},"limit":"2"}`)
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, float64(3), result["totalCount"])
					assert.Equal(t, float64(2), result["totalPages"])
					assert.Len(t, result["data"], 2)
					assert.Equal(t, map[string]any{"run_id": "r1"}, result["query"])
					assert.Equal(t, []any{"_id", "exec_time", "num", "namespace", "client", "query"}, result["headers"])
				})
				t.Run("search zero padded paging", func(t *testing.T) {
					w, result := do(t, handler, http.MethodPost, "/api/search/perf", `{"query":{"run_id":"r1"},"limit":"02","skip":"010"}`)
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, float64(2), result["limit"])
					assert.Equal(t, float64(6), result["currentPage"])
					assert.Equal(t, float64(2), result["totalPages"])
				})
				t.Run("search yaml query", func(t *testing.T) {
					w, result := do(t, handler, http.MethodPost, "/api/search/perf", `{"query":"run_id: r2"}`)
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, float64(1), result["totalCount"])
					assert.Equal(t, float64(querylens.DefaultSearchLimit), result["limit"])
				})
				t.Run("search malformed query", func(t *testing.T) {
					w, result := do(t, handler, http.MethodPost, "/api/search/perf", `{"query":{"$where":"sleep(100)"}}`)
					assert.Equal(t, http.StatusBadRequest, w.Code)
					assert.Equal(t, false, result["success"])
				})
				t.Run("search unknown collection", func(t *testing.T) {
					w, _ := do(t, handler, http.MethodPost, "/api/search/missing", `{"query":{"run_id":"r1"}}`)
					assert.Equal(t, http.StatusNotFound, w.Code)
				})
				t.Run("query stats", func(t *testing.T) {
					w, result := do(t, handler, http.MethodPost, "/api/querystats", `{}`)
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, float64(1), result["totalQueries"])
					assert.Len(t, result["queryStats"], 1)
					assert.Contains(t, result, "executionTimeMs")
					assert.Contains(t, result, "timestamp")
				})
				t.Run("cors", func(t *testing.T) {
					req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
					req.Header.Set("Origin", "http://localhost:3000")
					w := httptest.NewRecorder()
					handler.ServeHTTP(w, req)
					assert.Equal(t, http.StatusOK, w.Code)
					assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
				})
				t.Run("request id propagation", func(t *testing.T) {
					req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
					req.Header.Set("X-Request-Id", "abc")
					w := httptest.NewRecorder()
					handler.ServeHTTP(w, req)
					assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))
				})
			}))
		})
	}
}

func TestValidation(t *testing.T) {
	assert.NoError(t, testutil.TestStore(func(ctx context.Context, store *embedded.Store) {
		seed(ctx, t, store)
		o, err := New(testConfig(true), querylens.New(store), nil)
		assert.NoError(t, err)
		t.Run("negative skip", func(t *testing.T) {
			w, result := do(t, o.Handler(), http.MethodGet, "/api/data/perf?skip=-1", "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, result["success"])
		})
		t.Run("bad order", func(t *testing.T) {
			w, _ := do(t, o.Handler(), http.MethodPost, "/api/search/perf", `{"order":"sideways"}`)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}))
}

type failingStore struct {
	querylens.Store
}

func (f failingStore) Collections(ctx context.Context) ([]string, error) {
	return nil, errors.Newf(errors.ErrStoreUnavailable, "connection refused")
}

func TestStoreUnavailable(t *testing.T) {
	o, err := New(testConfig(false), querylens.New(failingStore{}), nil)
	assert.NoError(t, err)
	w, result := do(t, o.Handler(), http.MethodGet, "/api/collections", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "connection refused")
}

func TestRecovery(t *testing.T) {
	panics := func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Panic") != "" {
				panic("boom")
			}
			handler.ServeHTTP(w, r)
		})
	}
	assert.NoError(t, testutil.TestStore(func(ctx context.Context, store *embedded.Store) {
		o, err := New(testConfig(false), querylens.New(store), nil, panics)
		assert.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
		req.Header.Set("X-Panic", "true")
		w := httptest.NewRecorder()
		o.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	}))
}

func TestFeed(t *testing.T) {
	assert.NoError(t, testutil.TestStore(func(ctx context.Context, store *embedded.Store) {
		seed(ctx, t, store)
		o, err := New(testConfig(false), querylens.New(store), nil)
		assert.NoError(t, err)
		s := httptest.NewServer(o.Handler())
		defer s.Close()
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/api/querystats/feed?interval=1s", nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			var msg map[string]any
			assert.NoError(t, conn.ReadJSON(&msg))
			assert.Equal(t, true, msg["success"])
			assert.Equal(t, float64(1), msg["totalQueries"])
		}
		o.Close()
		_, _, err = conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err)
	}))
}

func TestFeedInterval(t *testing.T) {
	for _, tc := range []struct {
		value    string
		expected time.Duration
	}{
		{"", DefaultFeedInterval},
		{"30s", 30 * time.Second},
		{"5", 5 * time.Second},
		{"100ms", MinFeedInterval},
		{"0", MinFeedInterval},
		{"2m", 2 * time.Minute},
	} {
		d, err := feedInterval(tc.value, DefaultFeedInterval)
		assert.NoError(t, err, tc.value)
		assert.Equal(t, tc.expected, d, tc.value)
	}
	_, err := feedInterval("soon", DefaultFeedInterval)
	assert.Error(t, err)
}
