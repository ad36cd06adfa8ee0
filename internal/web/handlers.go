package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/cmingest/internal/core"
	"github.com/JonMunkholm/cmingest/internal/logging"
	"github.com/JonMunkholm/cmingest/internal/store"
)

const (
	maxCreateItems          = 1000
	maxDatapointsPerRequest = 100_000
	healthTimeout           = 2 * time.Second
)

type listAssetsRequest struct {
	Filter struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"filter"`
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

type listTimeSeriesRequest struct {
	Filter struct {
		NamePrefix string `json:"namePrefix"`
	} `json:"filter"`
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

type healthResponse struct {
	Status string      `json:"status"`
	Writes writeStatus `json:"writes"`
}

type itemsRequest[T any] struct {
	Items []T `json:"items"`
}

type datapointsItem struct {
	Name       string           `json:"name"`
	Datapoints []core.Datapoint `json:"datapoints"`
}

type rowsItem struct {
	ID   int64      `json:"id"`
	Rows []core.Row `json:"rows"`
}

// decode reads a JSON body into v. Numbers are kept as json.Number so
// nanosecond timestamps in sequence rows survive untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// decodeItems decodes an items envelope and checks its size.
func decodeItems[T any](r *http.Request, limit int) ([]T, error) {
	var req itemsRequest[T]
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, badRequest("items must not be empty")
	}
	if len(req.Items) > limit {
		return nil, badRequest("at most %d items per request, got %d", limit, len(req.Items))
	}
	return req.Items, nil
}

// requestContext adds the project to the request's log context.
func requestContext(r *http.Request) context.Context {
	return logging.WithAttrs(r.Context(), "project", chi.URLParam(r, "project"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Writes: s.writes.status()}
	if err := s.store.Ping(ctx); err != nil {
		logging.FromContext(ctx).Warn("health check failed", "error", err)
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	var req listAssetsRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	page, err := s.store.ListAssets(requestContext(r), req.Filter.Metadata, req.Limit, req.Cursor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilPage(page))
}

func (s *Server) handleCreateAssets(w http.ResponseWriter, r *http.Request) {
	items, err := decodeItems[core.Asset](r, maxCreateItems)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ctx := requestContext(r)
	created, err := s.store.CreateAssets(ctx, items)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(ctx).Info("assets created", "count", len(created))
	writeJSON(w, http.StatusCreated, itemsRequest[core.Asset]{Items: created})
}

func (s *Server) handleListTimeSeries(w http.ResponseWriter, r *http.Request) {
	var req listTimeSeriesRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	page, err := s.store.ListTimeSeries(requestContext(r), req.Filter.NamePrefix, req.Limit, req.Cursor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilPage(page))
}

func (s *Server) handleCreateTimeSeries(w http.ResponseWriter, r *http.Request) {
	items, err := decodeItems[core.TimeSeries](r, maxCreateItems)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ctx := requestContext(r)
	created, err := s.store.CreateTimeSeries(ctx, items)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(ctx).Info("time series created", "count", len(created))
	writeJSON(w, http.StatusCreated, itemsRequest[core.TimeSeries]{Items: created})
}

func (s *Server) handleInsertDatapoints(w http.ResponseWriter, r *http.Request) {
	items, err := decodeItems[datapointsItem](r, maxCreateItems)
	if err != nil {
		respondError(w, r, err)
		return
	}
	total := 0
	for _, it := range items {
		if it.Name == "" {
			respondError(w, r, badRequest("datapoints item without name"))
			return
		}
		total += len(it.Datapoints)
	}
	if total > maxDatapointsPerRequest {
		respondError(w, r, badRequest("at most %d datapoints per request, got %d", maxDatapointsPerRequest, total))
		return
	}

	ctx := requestContext(r)
	for _, it := range items {
		if err := s.store.InsertDatapoints(ctx, it.Name, it.Datapoints); err != nil {
			respondError(w, r, err)
			return
		}
	}
	logging.FromContext(ctx).Debug("datapoints inserted", "series", len(items), "points", total)
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleCreateSequences(w http.ResponseWriter, r *http.Request) {
	items, err := decodeItems[core.Sequence](r, maxCreateItems)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ctx := requestContext(r)
	created, err := s.store.CreateSequences(ctx, items)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(ctx).Info("sequences created", "count", len(created))
	writeJSON(w, http.StatusCreated, itemsRequest[core.Sequence]{Items: created})
}

func (s *Server) handleInsertSequenceRows(w http.ResponseWriter, r *http.Request) {
	items, err := decodeItems[rowsItem](r, maxCreateItems)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ctx := requestContext(r)
	rows := 0
	for _, it := range items {
		if err := normalizeRows(it.Rows); err != nil {
			respondError(w, r, err)
			return
		}
		if err := s.store.InsertSequenceRows(ctx, it.ID, it.Rows); err != nil {
			respondError(w, r, err)
			return
		}
		rows += len(it.Rows)
	}
	logging.FromContext(ctx).Debug("sequence rows inserted", "sequences", len(items), "rows", rows)
	writeJSON(w, http.StatusOK, struct{}{})
}

// normalizeRows replaces json.Number cell values with int64 when the number
// is integral and float64 otherwise.
func normalizeRows(rows []core.Row) error {
	for i := range rows {
		for j := range rows[i].Values {
			n, ok := rows[i].Values[j].Value.(json.Number)
			if !ok {
				continue
			}
			if v, err := n.Int64(); err == nil {
				rows[i].Values[j].Value = v
				continue
			}
			v, err := n.Float64()
			if err != nil {
				return badRequest("row %d: invalid number %q", rows[i].Index, n)
			}
			rows[i].Values[j].Value = v
		}
	}
	return nil
}

// nonNilPage makes empty pages encode as "items":[].
func nonNilPage[T any](p store.Page[T]) store.Page[T] {
	if p.Items == nil {
		p.Items = []T{}
	}
	return p
}
