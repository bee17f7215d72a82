package openapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/transport/openapi/httpError"
	"github.com/autom8ter/querylens/util"
	"github.com/gorilla/mux"
)

type collectionsResponse struct {
	Success     bool     `json:"success"`
	Collections []string `json:"collections"`
}

type runIDsResponse struct {
	Success bool `json:"success"`
	querylens.RunIDsResult
}

type pageResponse struct {
	Success bool `json:"success"`
	*querylens.Page
}

type queryStatsResponse struct {
	Success bool `json:"success"`
	*querylens.QueryStatsResult
}

// searchRequest is the weakly typed body of a search
type searchRequest struct {
	Query any    `json:"query"`
	Limit int    `json:"limit"`
	Skip  int    `json:"skip"`
	Sort  string `json:"sort"`
	Order string `json:"order"`
}

type queryStatsRequest struct {
	TransformIdentifiers map[string]any `json:"transformIdentifiers"`
}

func respond(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

func (o *Server) specHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "json" {
			bits, err := util.YAMLToJSON(o.spec)
			if err != nil {
				httpError.Error(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(bits)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(o.spec)
	}
}

func (o *Server) collectionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collections, err := o.svc.Collections(r.Context())
		if err != nil {
			httpError.Error(w, err)
			return
		}
		respond(w, collectionsResponse{Success: true, Collections: collections})
	}
}

func (o *Server) runIDsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := o.svc.RunIDs(r.Context())
		if err != nil {
			httpError.Error(w, err)
			return
		}
		respond(w, runIDsResponse{Success: true, RunIDsResult: result})
	}
}

func (o *Server) dataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		limit, err := intParam(query.Get("limit"), errors.ErrInvalidLimit, "limit")
		if err != nil {
			httpError.Error(w, err)
			return
		}
		skip, err := intParam(query.Get("skip"), errors.ErrInvalidArgument, "skip")
		if err != nil {
			httpError.Error(w, err)
			return
		}
		order, err := querylens.ParseDirection(query.Get("order"))
		if err != nil {
			httpError.Error(w, err)
			return
		}
		page, err := o.svc.Browse(r.Context(), querylens.QueryRequest{
			Collection: mux.Vars(r)["collection"],
			SortField:  query.Get("sort"),
			SortOrder:  order,
			Skip:       skip,
			Limit:      limit,
		})
		if err != nil {
			httpError.Error(w, err)
			return
		}
		respond(w, pageResponse{Success: true, Page: page})
	}
}

func (o *Server) searchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body searchRequest
		if err := decodeBody(r, &body); err != nil {
			httpError.Error(w, err)
			return
		}
		filter, err := toFilter(body.Query)
		if err != nil {
			httpError.Error(w, err)
			return
		}
		order, err := querylens.ParseDirection(body.Order)
		if err != nil {
			httpError.Error(w, err)
			return
		}
		page, err := o.svc.Search(r.Context(), querylens.QueryRequest{
			Collection: mux.Vars(r)["collection"],
			Filter:     filter,
			SortField:  body.Sort,
			SortOrder:  order,
			Skip:       body.Skip,
			Limit:      body.Limit,
		})
		if err != nil {
			httpError.Error(w, err)
			return
		}
		respond(w, pageResponse{Success: true, Page: page})
	}
}

func (o *Server) queryStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body queryStatsRequest
		if err := decodeBody(r, &body); err != nil {
			httpError.Error(w, err)
			return
		}
		result, err := o.svc.QueryStats(r.Context(), body.TransformIdentifiers)
		if err != nil {
			httpError.Error(w, err)
			return
		}
		respond(w, queryStatsResponse{Success: true, QueryStatsResult: result})
	}
}

// decodeBody weakly decodes an optional json object body into the output
func decodeBody(r *http.Request, output any) error {
	bits, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.WrapKind(err, errors.ErrInvalidArgument, "failed to read request body")
	}
	if len(strings.TrimSpace(string(bits))) == 0 {
		return nil
	}
	var input map[string]any
	if err := json.Unmarshal(bits, &input); err != nil {
		return errors.WrapKind(err, errors.ErrInvalidArgument, "request body must be a json object")
	}
	if err := util.Decode(input, output); err != nil {
		return errors.WrapKind(err, errors.ErrInvalidArgument, "failed to decode request body")
	}
	return nil
}

// toFilter accepts a filter object or a json/yaml filter string
func toFilter(query any) (querylens.Filter, error) {
	switch query := query.(type) {
	case nil:
		return querylens.Filter{}, nil
	case map[string]any:
		return querylens.Filter(query), nil
	case string:
		return querylens.ParseFilter([]byte(query))
	default:
		return nil, errors.Newf(errors.ErrMalformedFilter, "query must be an object, got %T", query)
	}
}

func intParam(value string, sentinel *errors.Error, name string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := util.ParseInt(value)
	if err != nil {
		return 0, errors.WrapKind(err, sentinel, "invalid %s: %q", name, value)
	}
	return n, nil
}
