package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"pricedash/internal/backend"
	"pricedash/internal/core"
	"pricedash/internal/log"
	"pricedash/internal/sources/csvfile"
	"pricedash/internal/sources/xlsx"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleFilters(r *http.Request, locale string) *ResponseBuilder {
	catalog, err := s.prices.Filters(r.Context(), locale, ParseSelection(r.URL.Query()))
	if err != nil {
		return s.failure(r, locale, "filters", err)
	}
	return NewResponse().JSON(catalog)
}

func (s *Server) handleOverview(r *http.Request, locale string) *ResponseBuilder {
	res, err := s.prices.Overview(r.Context(), locale, ParseSelection(r.URL.Query()))
	if err != nil {
		return s.failure(r, locale, "overview", err)
	}
	return NewResponse().JSON(res)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request, locale string) {
	q := r.URL.Query()
	res, err := s.prices.Prices(r.Context(), locale, ParseSelection(q), ParseLimit(q))
	if err != nil {
		s.failure(r, locale, "prices", err).Write(w)
		return
	}
	NewResponse().JSON(res).Write(w)
}

func (s *Server) handleLatestPrices(w http.ResponseWriter, r *http.Request, locale string) {
	q := r.URL.Query()
	res, err := s.prices.LatestPrices(r.Context(), locale, ParseSelection(q), ParseLimit(q))
	if err != nil {
		s.failure(r, locale, "latest_prices", err).Write(w)
		return
	}
	NewResponse().JSON(res).Write(w)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request, locale string) {
	s.export(w, r, locale, "xlsx", contentTypeXLSX, xlsx.WriteObservations)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request, locale string) {
	s.export(w, r, locale, "csv", "text/csv; charset=utf-8", csvfile.Write)
}

// export renders the rows of the prices listing as a download. The file is
// built in memory first so a failure never leaves a truncated attachment.
func (s *Server) export(w http.ResponseWriter, r *http.Request, locale, ext, contentType string, write func(io.Writer, []core.Observation) error) {
	q := r.URL.Query()
	res, err := s.prices.Prices(r.Context(), locale, ParseSelection(q), ParseLimit(q))
	if err != nil {
		s.failure(r, locale, "export", err).Write(w)
		return
	}

	var buf bytes.Buffer
	if err := write(&buf, res.Rows); err != nil {
		s.failure(r, locale, "export", fmt.Errorf("render %s: %w", ext, err)).Write(w)
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Exported prices",
		log.FieldOperation, log.OpExport,
		log.FieldLocale, locale,
		log.FieldRowCount, len(res.Rows))

	NewResponse().
		Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "prices-"+locale+"."+ext)).
		Body(contentType, buf.Bytes()).
		Write(w)
}

// failure logs err at a level matching its response and builds that response.
func (s *Server) failure(r *http.Request, locale, operation string, err error) *ResponseBuilder {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentHTTP)
	args := []any{
		log.FieldOperation, operation,
		log.FieldLocale, locale,
		log.FieldError, err.Error(),
	}
	switch {
	case errors.Is(err, backend.ErrUnknownLocale):
		logger.DebugContext(ctx, "Request for unknown locale", args...)
	case errors.Is(err, core.ErrStoreUnavailable):
		logger.WarnContext(ctx, "Store unavailable", args...)
	default:
		logger.ErrorContext(ctx, "Request failed", args...)
	}
	return ErrorFor(err)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ready.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		ServiceUnavailableError("not ready").Write(w)
		return
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}
